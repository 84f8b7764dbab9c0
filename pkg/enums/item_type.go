package enums

// ItemType distinguishes stocked products from courses.
type ItemType string

const (
	ItemTypeProduct ItemType = "PRODUCT"
	ItemTypeCourse  ItemType = "COURSE"
)

var itemTypes = []ItemType{ItemTypeProduct, ItemTypeCourse}

func (t ItemType) String() string { return string(t) }
func (t ItemType) IsValid() bool  { return member(itemTypes, t) }

// HasStock reports whether the item type is tracked by the inventory ledger.
func (t ItemType) HasStock() bool {
	return t == ItemTypeProduct
}

func ParseItemType(value string) (ItemType, error) {
	return parse(itemTypes, "item type", value)
}
