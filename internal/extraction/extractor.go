package extraction

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited signals that a provider refused the request due to
// throughput or quota limits. It is the only adapter error that makes
// the pipeline try the fallback provider.
var ErrRateLimited = errors.New("provider rate limited")

// DecodeError wraps a failure to decode an uploaded image. Unlike
// provider errors, it is surfaced to the caller instead of being
// swallowed into an empty result.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Item is a single line from a receipt. Price is the line total as
// printed on the receipt, so Quantity is always clamped to 1..100 and
// effectively 1.
type Item struct {
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	IsModifier bool    `json:"is_modifier"`
}

// Result is the outcome of one extraction attempt. Exactly one of
// "Items non-empty", "RateLimited" or "Items empty" holds after a
// pipeline call completes.
type Result struct {
	Items          []Item   `json:"items"`
	ReceiptTotal   *float64 `json:"receipt_total,omitempty"`
	RestaurantName string   `json:"restaurant_name,omitempty"`
	RateLimited    bool     `json:"rate_limited"`
}

// Extractor defines the interface for receipt extraction providers.
type Extractor interface {
	// Extract sends a receipt image to the provider and returns the
	// parsed line items. Returns ErrRateLimited (possibly wrapped) when
	// the provider refuses due to throughput limits.
	Extract(ctx context.Context, image []byte, mimeType string) (*Result, error)
	// Close releases provider resources.
	Close() error
}

// itemRules is the shared part of the instruction prompt. Both
// providers receive the same extraction rules; only the primary is
// additionally asked for the restaurant name.
const itemRules = `Each item in the "items" array should have:
- "name": the item name (string)
- "quantity": always set to 1 (we use line totals, not unit prices)
- "price": the LINE TOTAL price shown on the receipt (number, without currency symbol)
- "is_modifier": true if this is a modifier/add-on to the previous item (like extra ingredients, milk type, etc.), false if it's a main item

CRITICAL RULES:
1. The "price" field should be the TOTAL AMOUNT shown on that line of the receipt.
   - If receipt shows "2 LATTE $130.00", return quantity: 1, price: 130.00 (the line total)
   - Do NOT multiply quantity by price - the receipt already shows the line total
2. Always set quantity to 1 since we're using the line total price.
3. Each item's name MUST be paired with the price that appears on the SAME LINE of the receipt.
4. ONLY include lines where BOTH an item name AND a price appear together on the same row.
5. COMPLETELY SKIP any line that does not have a price number on it, including:
   - Cooking instructions (e.g., "Medium Well", "No Ice", "Extra Hot")
   - Preparation notes (e.g., "See Server", "N/A")
   - Sub-item descriptions (e.g., "Agua Natural" appearing below a drink without its own price)
6. Do NOT shift prices from one item to another.
7. For "receipt_total", look for the final TOTAL line on the receipt (may be labeled "TOTAL:", "Total", etc.)
8. IMPORTANT: Include ALL items with prices, even if the same item name appears multiple times on the receipt.
   - For example, if "LECHE COCO $10.00" appears twice on the receipt (once under LATTE, once under BEBIDA), include BOTH entries.
   - Each line with a price should be a separate entry in the items array.

Do NOT include subtotals, tax (IVA), tips in the items array.`

// primaryPrompt asks for the restaurant name on top of the line items.
const primaryPrompt = `Analyze this restaurant receipt image and extract all line items.
Return a JSON object with:
- "restaurant_name": the name of the restaurant/business (short, clean name - e.g., "Encanto Cafe", "Wild Rooster", "Starbucks")
- "items": array of line items
- "receipt_total": the TOTAL amount shown on the receipt (the final total, including tax if shown)

For "restaurant_name":
- Look at the TOP of the receipt for the business name (usually in larger text or the first line)
- Extract a SHORT, CLEAN name (2-4 words max)
- Examples: "ENCANTO RESTAURANTE CAFE" becomes "Encanto Cafe", "WILD ROOSTER CAFE BAR" becomes "Wild Rooster"
- Remove words like "RESTAURANTE", "S.A. DE C.V.", "RFC:", addresses, etc.
- If unclear, return null

` + itemRules + `

Example - if receipt shows:
  ENCANTO RESTAURANTE CAFE
  AMANDA MONSERRATE ACOSTA
  RFC:...
  ...
  CANT. DESCRIPCION              IMPORTE
  1     Limonada                  66.00
        Agua Natural
  2     Latte                    130.00
        Leche Deslactosada        10.00
  1     Bohemia Obs               74.00
  ================================
  TOTAL:                        $280.00

Return:
{
  "restaurant_name": "Encanto Cafe",
  "receipt_total": 280.00,
  "items": [
    {"name": "Limonada", "quantity": 1, "price": 66.00, "is_modifier": false},
    {"name": "Latte", "quantity": 1, "price": 130.00, "is_modifier": false},
    {"name": "Leche Deslactosada", "quantity": 1, "price": 10.00, "is_modifier": true},
    {"name": "Bohemia Obs", "quantity": 1, "price": 74.00, "is_modifier": false}
  ]
}

Return ONLY the JSON object, no other text.`

// fallbackPrompt is the primary prompt without the restaurant name
// section; the fallback provider never reports a restaurant name.
const fallbackPrompt = `Analyze this restaurant receipt image and extract all line items.
Return a JSON object with:
- "items": array of line items
- "receipt_total": the TOTAL amount shown on the receipt (the final total, including tax if shown)

` + itemRules + `

Example - if receipt shows:
  CANT. DESCRIPCION              IMPORTE
  1     Limonada                  66.00
        Agua Natural
  2     Latte                    130.00
        Leche Deslactosada        10.00
  1     Bohemia Obs               74.00
  ================================
  TOTAL:                        $280.00

Return:
{
  "receipt_total": 280.00,
  "items": [
    {"name": "Limonada", "quantity": 1, "price": 66.00, "is_modifier": false},
    {"name": "Latte", "quantity": 1, "price": 130.00, "is_modifier": false},
    {"name": "Leche Deslactosada", "quantity": 1, "price": 10.00, "is_modifier": true},
    {"name": "Bohemia Obs", "quantity": 1, "price": 74.00, "is_modifier": false}
  ]
}

Return ONLY the JSON object, no other text.`

// systemInstruction primes both providers for the task.
const systemInstruction = "You are an expert at reading restaurant receipts and extracting itemized data."
