package domain

import "time"

// OrderDocument is the persisted shape of an order, shared by every store
// and the local cache. Optional attributes carry omitempty: an absent field
// and an empty one mean the same thing and the empty form is never written.
type OrderDocument struct {
	ID            string         `json:"id" firestore:"id"`
	RestaurantID  string         `json:"restaurantId" firestore:"restaurantId"`
	OrderNumber   string         `json:"orderNumber" firestore:"orderNumber"`
	TableID       string         `json:"tableId" firestore:"tableId"`
	Type          string         `json:"type" firestore:"type"`
	Status        string         `json:"status" firestore:"status"`
	Items         []LineDocument `json:"items" firestore:"items"`
	Subtotal      float64        `json:"subtotal" firestore:"subtotal"`
	Tax           float64        `json:"tax" firestore:"tax"`
	Discount      float64        `json:"discount" firestore:"discount"`
	Total         float64        `json:"total" firestore:"total"`
	PaymentStatus string         `json:"paymentStatus" firestore:"paymentStatus"`
	Notes         string         `json:"notes,omitempty" firestore:"notes,omitempty"`
	StaffID       string         `json:"staffId" firestore:"staffId"`
	CreatedAt     time.Time      `json:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" firestore:"updatedAt"`
	WriteID       string         `json:"writeId,omitempty" firestore:"writeId,omitempty"`
}

type LineDocument struct {
	ID             string            `json:"id" firestore:"id"`
	MenuItemID     string            `json:"menuItemId" firestore:"menuItemId"`
	Name           string            `json:"name" firestore:"name"`
	UnitPrice      float64           `json:"unitPrice" firestore:"unitPrice"`
	Quantity       int               `json:"quantity" firestore:"quantity"`
	LineTotal      float64           `json:"lineTotal" firestore:"lineTotal"`
	Customizations []string          `json:"customizations,omitempty" firestore:"customizations,omitempty"`
	Variants       []VariantDocument `json:"variants,omitempty" firestore:"variants,omitempty"`
	Notes          string            `json:"notes,omitempty" firestore:"notes,omitempty"`
}

type VariantDocument struct {
	GroupID    string  `json:"groupId" firestore:"groupId"`
	GroupName  string  `json:"groupName,omitempty" firestore:"groupName,omitempty"`
	OptionID   string  `json:"optionId" firestore:"optionId"`
	OptionName string  `json:"optionName,omitempty" firestore:"optionName,omitempty"`
	PriceDelta float64 `json:"priceDelta,omitempty" firestore:"priceDelta,omitempty"`
}

// ToDocument converts an order to its persisted shape.
func ToDocument(o *Order) OrderDocument {
	doc := OrderDocument{
		ID:            o.ID,
		RestaurantID:  o.RestaurantID,
		OrderNumber:   o.Number,
		TableID:       o.TableID,
		Type:          string(o.Type),
		Status:        string(o.Status),
		Items:         make([]LineDocument, 0, len(o.Items)),
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		Discount:      o.Discount,
		Total:         o.Total,
		PaymentStatus: string(o.PaymentStatus),
		Notes:         o.Notes,
		StaffID:       o.StaffID,
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
		WriteID:       o.WriteID,
	}
	for _, item := range o.Items {
		line := LineDocument{
			ID:         item.ID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			LineTotal:  item.LineTotal,
			Notes:      item.Notes,
		}
		if len(item.Customizations) > 0 {
			line.Customizations = append([]string(nil), item.Customizations...)
		}
		for _, v := range item.Variants {
			line.Variants = append(line.Variants, VariantDocument(v))
		}
		doc.Items = append(doc.Items, line)
	}
	return doc
}

// FromDocument converts a stored document back to an order. Missing
// optional fields come back as nil/empty, never as placeholders.
func FromDocument(doc OrderDocument) *Order {
	o := &Order{
		ID:            doc.ID,
		RestaurantID:  doc.RestaurantID,
		Number:        doc.OrderNumber,
		TableID:       doc.TableID,
		Type:          OrderType(doc.Type),
		Status:        Status(doc.Status),
		Items:         make([]OrderLine, 0, len(doc.Items)),
		Subtotal:      doc.Subtotal,
		Tax:           doc.Tax,
		Discount:      doc.Discount,
		Total:         doc.Total,
		PaymentStatus: PaymentStatus(doc.PaymentStatus),
		Notes:         doc.Notes,
		StaffID:       doc.StaffID,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		WriteID:       doc.WriteID,
	}
	for _, line := range doc.Items {
		item := OrderLine{
			ID:         line.ID,
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			LineTotal:  line.LineTotal,
			Notes:      line.Notes,
		}
		if len(line.Customizations) > 0 {
			item.Customizations = line.Customizations
		}
		for _, v := range line.Variants {
			item.Variants = append(item.Variants, SelectedVariant(v))
		}
		o.Items = append(o.Items, item)
	}
	return o
}
