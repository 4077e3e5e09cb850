package splitcheck

import "fmt"

// PartState is the persisted form of one divided-item part.
type PartState struct {
	ID         string  `json:"id"`
	Price      float64 `json:"price"`
	AssignedTo int     `json:"assigned_to,omitempty"`
}

// DividedItemState is the persisted form of a divided item: the header
// row's original price plus its parts in original order.
type DividedItemState struct {
	ItemID        string      `json:"item_id"`
	OriginalPrice float64     `json:"original_price"`
	Parts         []PartState `json:"parts"`
}

// SplitState is the full snapshot of an engine, persisted per check
// session and restorable across reloads. Part assignments live inside
// DividedItems; Assignments covers the remaining rows. Unknown JSON
// fields are ignored on read and missing ones fall back to engine
// defaults.
type SplitState struct {
	People           []*Person          `json:"people"`
	SelectedPersonID int                `json:"selected_person_id"`
	NextPersonID     int                `json:"next_person_id"`
	Assignments      map[string]int     `json:"assignments"`
	DividedItems     []DividedItemState `json:"divided_items,omitempty"`
	TipPercentage    *float64           `json:"tip_percentage,omitempty"`
}

// Snapshot captures the engine's current state.
func (e *Engine) Snapshot() *SplitState {
	state := &SplitState{
		People:           e.people,
		SelectedPersonID: e.selectedID,
		NextPersonID:     e.nextPersonID,
		Assignments:      make(map[string]int),
	}
	tip := e.tip
	state.TipPercentage = &tip

	for _, r := range e.rows {
		if r.IsPart || r.Divided {
			continue
		}
		if r.AssignedTo != 0 {
			state.Assignments[r.ID] = r.AssignedTo
		}
	}

	for _, r := range e.rows {
		if !r.Divided {
			continue
		}
		divided := DividedItemState{
			ItemID:        r.ID,
			OriginalPrice: r.OriginalPrice,
		}
		for _, part := range e.rows {
			if part.ParentID == r.ID {
				divided.Parts = append(divided.Parts, PartState{
					ID:         part.ID,
					Price:      part.Price,
					AssignedTo: part.AssignedTo,
				})
			}
		}
		state.DividedItems = append(state.DividedItems, divided)
	}

	return state
}

// Restore applies a snapshot to an engine freshly seeded with the same
// item set. Divided items are rebuilt first (headers plus parts with
// their persisted prices and assignments), then plain assignments, so
// the reconstructed row set matches the saved one. A selected person
// missing from the people list falls back to the first listed person.
func (e *Engine) Restore(state *SplitState) {
	if state == nil {
		return
	}

	if len(state.People) > 0 {
		e.people = state.People
	}
	if state.NextPersonID > 0 {
		e.nextPersonID = state.NextPersonID
	}
	if state.TipPercentage != nil {
		e.tip = clampTip(*state.TipPercentage)
	}

	if state.SelectedPersonID != 0 && e.findPerson(state.SelectedPersonID) != nil {
		e.selectedID = state.SelectedPersonID
	} else {
		e.selectedID = e.people[0].ID
	}

	for _, divided := range state.DividedItems {
		row := e.findRow(divided.ItemID)
		if row == nil || row.Divided || row.IsPart {
			continue
		}

		row.Divided = true
		row.OriginalPrice = divided.OriginalPrice
		row.Price = 0
		row.AssignedTo = 0

		n := len(divided.Parts)
		parts := make([]*Row, 0, n)
		for i, saved := range divided.Parts {
			assignedTo := 0
			if e.findPerson(saved.AssignedTo) != nil {
				assignedTo = saved.AssignedTo
			}
			parts = append(parts, &Row{
				ID:         saved.ID,
				Name:       fmt.Sprintf("%s (%d/%d)", row.Name, i+1, n),
				Price:      saved.Price,
				Group:      row.Group,
				IsPart:     true,
				ParentID:   row.ID,
				AssignedTo: assignedTo,
			})
		}
		e.insertAfter(row, parts)
	}

	for rowID, personID := range state.Assignments {
		row := e.findRow(rowID)
		if row == nil || row.Divided || e.findPerson(personID) == nil {
			continue
		}
		row.AssignedTo = personID
	}
}
