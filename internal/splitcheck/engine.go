package splitcheck

import (
	"fmt"

	"github.com/dividircuenta/split-check/internal/extraction"
)

// paletteSize is the number of color slots people cycle through.
const paletteSize = 8

// Person is someone the check is split between. IDs are monotonically
// assigned and never reused.
type Person struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ColorIndex int    `json:"color_index"`
}

// Row is one assignable line of the check: a main item, a modifier, a
// divided-item header or one of its parts. A row belongs to at most one
// person; AssignedTo zero means unassigned. Group ties a main item to
// its modifier rows (and a divided header to its parts) by a weak
// back-reference; groups are always recomputed by filtering, never
// stored as their own structure.
type Row struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	IsModifier bool    `json:"is_modifier"`
	Group      string  `json:"group"`
	AssignedTo int     `json:"assigned_to,omitempty"`

	// Divided-item bookkeeping. A divided header keeps its original
	// price for undivide and is itself not assignable.
	Divided       bool    `json:"divided,omitempty"`
	OriginalPrice float64 `json:"original_price,omitempty"`
	IsPart        bool    `json:"is_part,omitempty"`
	ParentID      string  `json:"parent_id,omitempty"`
}

// Totals is the per-person money breakdown.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tip      float64 `json:"tip"`
	Total    float64 `json:"total"`
}

// Engine holds the in-memory allocation state for one check. All
// operations are synchronous and never fail on valid input; invalid
// operations are no-ops.
type Engine struct {
	rows         []*Row
	people       []*Person
	selectedID   int
	nextPersonID int
	tip          float64
}

// DefaultTipPercentage seeds new checks.
const DefaultTipPercentage = 10

// NewEngine seeds an engine with extracted items. Rows are grouped by
// main item: each non-modifier row opens a group its following
// modifier rows join. The engine starts with two people, the first
// selected.
func NewEngine(items []extraction.Item) *Engine {
	e := &Engine{
		people: []*Person{
			{ID: 1, Name: "Yo", ColorIndex: 0},
			{ID: 2, Name: "Persona 1", ColorIndex: 1},
		},
		selectedID:   1,
		nextPersonID: 3,
		tip:          DefaultTipPercentage,
	}

	group := 0
	for i, item := range items {
		if !item.IsModifier {
			group = i
		}
		e.rows = append(e.rows, &Row{
			ID:         fmt.Sprintf("item-%d", i),
			Name:       item.Name,
			Price:      item.Price,
			IsModifier: item.IsModifier,
			Group:      fmt.Sprintf("g%d", group),
		})
	}

	return e
}

// Rows returns the current row list in display order.
func (e *Engine) Rows() []*Row {
	return e.rows
}

// People returns the current people in list order.
func (e *Engine) People() []*Person {
	return e.people
}

// SelectedPersonID returns the currently selected person.
func (e *Engine) SelectedPersonID() int {
	return e.selectedID
}

// TipPercentage returns the stored tip percentage.
func (e *Engine) TipPercentage() float64 {
	return e.tip
}

// SetTipPercentage stores the tip used by default summaries.
func (e *Engine) SetTipPercentage(tip float64) {
	e.tip = tip
}

func (e *Engine) findPerson(id int) *Person {
	for _, p := range e.people {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (e *Engine) findRow(id string) *Row {
	for _, r := range e.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// SelectPerson makes the given person current. Unknown ids are ignored.
func (e *Engine) SelectPerson(id int) {
	if e.findPerson(id) != nil {
		e.selectedID = id
	}
}

// nextAvailableColorIndex picks the first unused palette slot, or the
// least used one once every slot is taken.
func (e *Engine) nextAvailableColorIndex() int {
	used := make(map[int]int)
	for _, p := range e.people {
		used[p.ColorIndex]++
	}
	for i := 0; i < paletteSize; i++ {
		if used[i] == 0 {
			return i
		}
	}
	minIndex := 0
	minCount := used[0]
	for i := 1; i < paletteSize; i++ {
		if used[i] < minCount {
			minCount = used[i]
			minIndex = i
		}
	}
	return minIndex
}

// AddPerson appends a person with the next unused id and color slot
// and selects them. An empty name gets the default "Persona N".
func (e *Engine) AddPerson(name string) *Person {
	if name == "" {
		name = fmt.Sprintf("Persona %d", e.nextPersonID)
	}
	p := &Person{
		ID:         e.nextPersonID,
		Name:       name,
		ColorIndex: e.nextAvailableColorIndex(),
	}
	e.people = append(e.people, p)
	e.selectedID = p.ID
	e.nextPersonID++
	return p
}

// RenamePerson updates a person's display name. Empty names and
// unknown ids are ignored.
func (e *Engine) RenamePerson(id int, name string) bool {
	p := e.findPerson(id)
	if p == nil || name == "" {
		return false
	}
	p.Name = name
	return true
}

// RemovePerson deletes a person, unassigning everything they held.
// Refuses when only one person remains, so the engine always has at
// least one person. If the removed person was selected, selection
// falls back to the first remaining person in list order.
func (e *Engine) RemovePerson(id int) bool {
	if len(e.people) <= 1 || e.findPerson(id) == nil {
		return false
	}

	for _, r := range e.rows {
		if r.AssignedTo == id {
			r.AssignedTo = 0
		}
	}

	remaining := e.people[:0]
	for _, p := range e.people {
		if p.ID != id {
			remaining = append(remaining, p)
		}
	}
	e.people = remaining

	if e.selectedID == id {
		e.selectedID = e.people[0].ID
	}
	return true
}

// AssignItem toggles a single row's assignment: assigning a row to the
// person who already holds it unassigns it. Divided headers and
// unknown people are ignored.
func (e *Engine) AssignItem(rowID string, personID int) {
	row := e.findRow(rowID)
	if row == nil || row.Divided || e.findPerson(personID) == nil {
		return
	}
	if row.AssignedTo == personID {
		row.AssignedTo = 0
	} else {
		row.AssignedTo = personID
	}
}

// groupRows filters the current rows by group id.
func (e *Engine) groupRows(group string) []*Row {
	var rows []*Row
	for _, r := range e.rows {
		if r.Group == group {
			rows = append(rows, r)
		}
	}
	return rows
}

// AssignGroup toggles a whole group (a main item plus its modifier
// rows) as a unit. If the group's main row is not already held by the
// person, every row in the group is assigned to them; otherwise every
// row is unassigned. Divided headers stay unassigned either way.
func (e *Engine) AssignGroup(group string, personID int) {
	if e.findPerson(personID) == nil {
		return
	}
	rows := e.groupRows(group)
	if len(rows) == 0 {
		return
	}

	// The representative decides the toggle direction. Divided headers
	// are permanently unassigned, so they cannot represent the group;
	// fall through to the first assignable row (a part, when the main
	// item is divided).
	var main *Row
	for _, r := range rows {
		if !r.IsModifier && !r.IsPart && !r.Divided {
			main = r
			break
		}
	}
	if main == nil {
		for _, r := range rows {
			if !r.Divided {
				main = r
				break
			}
		}
	}
	if main == nil {
		return
	}

	assign := main.AssignedTo != personID
	for _, r := range rows {
		if r.Divided {
			continue
		}
		if assign {
			r.AssignedTo = personID
		} else {
			r.AssignedTo = 0
		}
	}
}

// AssignRemainderToNewPerson creates a person and hands them every
// currently unassigned row. Returns nil when nothing is unassigned.
// The default name intentionally lags the id by one, as the UI this
// engine grew out of did.
func (e *Engine) AssignRemainderToNewPerson() *Person {
	var unassigned []*Row
	for _, r := range e.rows {
		if r.AssignedTo == 0 && !r.Divided {
			unassigned = append(unassigned, r)
		}
	}
	if len(unassigned) == 0 {
		return nil
	}

	p := e.AddPerson(fmt.Sprintf("Persona %d", e.nextPersonID-1))
	for _, r := range unassigned {
		r.AssignedTo = p.ID
	}
	return p
}

// makeParts builds the sub-rows for a divided header. Prices keep full
// float64 precision; the displayed two-decimal parts may sum a cent
// off the original.
func makeParts(header *Row, n int) []*Row {
	parts := make([]*Row, n)
	for i := 0; i < n; i++ {
		parts[i] = &Row{
			ID:       fmt.Sprintf("%s-part-%d", header.ID, i+1),
			Name:     fmt.Sprintf("%s (%d/%d)", header.Name, i+1, n),
			Price:    header.OriginalPrice / float64(n),
			Group:    header.Group,
			IsPart:   true,
			ParentID: header.ID,
		}
	}
	return parts
}

// insertAfter splices rows in right after the given header.
func (e *Engine) insertAfter(header *Row, parts []*Row) {
	for i, r := range e.rows {
		if r == header {
			rest := append([]*Row{}, e.rows[i+1:]...)
			e.rows = append(e.rows[:i+1], append(parts, rest...)...)
			return
		}
	}
}

// DivideItem converts a row into a non-assignable header plus n
// equally priced, independently assignable parts. Requires n >= 2 and
// a plain row (not already divided, not itself a part); anything else
// is a no-op.
func (e *Engine) DivideItem(rowID string, n int) bool {
	row := e.findRow(rowID)
	if row == nil || n < 2 || row.Divided || row.IsPart {
		return false
	}

	row.Divided = true
	row.OriginalPrice = row.Price
	row.Price = 0
	row.AssignedTo = 0

	e.insertAfter(row, makeParts(row, n))
	return true
}

// DivideEqually divides a row into one part per current person, each
// part pre-assigned to a person in list order. Needs at least two
// people.
func (e *Engine) DivideEqually(rowID string) bool {
	if len(e.people) < 2 {
		return false
	}
	if !e.DivideItem(rowID, len(e.people)) {
		return false
	}
	i := 0
	for _, r := range e.rows {
		if r.ParentID == rowID {
			r.AssignedTo = e.people[i].ID
			i++
		}
	}
	return true
}

// Undivide removes a divided item's parts and restores the header to a
// normal assignable row at its original price, unassigned.
func (e *Engine) Undivide(rowID string) bool {
	row := e.findRow(rowID)
	if row == nil || !row.Divided {
		return false
	}

	kept := e.rows[:0]
	for _, r := range e.rows {
		if r.ParentID != rowID {
			kept = append(kept, r)
		}
	}
	e.rows = kept

	row.Divided = false
	row.Price = row.OriginalPrice
	row.OriginalPrice = 0
	row.AssignedTo = 0
	return true
}

func clampTip(tip float64) float64 {
	if tip < 0 {
		return 0
	}
	if tip > 100 {
		return 100
	}
	return tip
}

// ComputeTotals derives each person's subtotal, tip and total for the
// given tip percentage (clamped to 0..100), plus the subtotal of
// unassigned rows. Unassigned rows never receive tip. Divided headers
// carry price zero, so only their parts count.
func (e *Engine) ComputeTotals(tipPercentage float64) (map[int]Totals, float64) {
	frac := clampTip(tipPercentage) / 100

	subtotals := make(map[int]float64, len(e.people))
	for _, p := range e.people {
		subtotals[p.ID] = 0
	}

	var unassigned float64
	for _, r := range e.rows {
		if r.AssignedTo == 0 {
			unassigned += r.Price
			continue
		}
		if _, ok := subtotals[r.AssignedTo]; ok {
			subtotals[r.AssignedTo] += r.Price
		}
	}

	totals := make(map[int]Totals, len(e.people))
	for id, sub := range subtotals {
		tip := sub * frac
		totals[id] = Totals{
			Subtotal: sub,
			Tip:      tip,
			Total:    sub + tip,
		}
	}
	return totals, unassigned
}
