package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Line is one cart entry as exchanged with clients.
type Line struct {
	ItemID   uuid.UUID      `json:"item_id" validate:"required"`
	ItemType enums.ItemType `json:"item_type" validate:"required"`
	Quantity int            `json:"quantity" validate:"required,gt=0,lte=9999"`
}

// MaxLineQuantity bounds one cart line, merged lines included.
const MaxLineQuantity = 9999

type lineKey struct {
	itemType enums.ItemType
	itemID   uuid.UUID
}

// Merge folds client lines into the server lines. Matching (item type, item
// id) pairs add their quantities; new pairs are appended in client order.
// Summed quantities stop at MaxLineQuantity; stock is checked at checkout.
func Merge(server, client []Line) []Line {
	out := make([]Line, 0, len(server)+len(client))
	index := make(map[lineKey]int, len(server)+len(client))
	for _, src := range [][]Line{server, client} {
		for _, line := range src {
			key := lineKey{itemType: line.ItemType, itemID: line.ItemID}
			if i, ok := index[key]; ok {
				out[i].Quantity = min(out[i].Quantity+line.Quantity, MaxLineQuantity)
				continue
			}
			index[key] = len(out)
			out = append(out, line)
		}
	}
	return out
}
