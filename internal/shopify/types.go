// Package shopify implements commerce.Platform against a Shopify store:
// Admin REST for customers and orders, Admin GraphQL for discount codes and
// Storefront GraphQL for carts. All Shopify wire types live here.
package shopify

import "encoding/json"

// === Admin REST ===

// ShopifyCustomer is a customer as returned by customers/search.json.
type ShopifyCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// CustomerSearchResponse wraps customers/search.json.
type CustomerSearchResponse struct {
	Customers []ShopifyCustomer `json:"customers"`
}

// OrderRequest wraps the POST orders.json body.
type OrderRequest struct {
	Order ShopifyOrder `json:"order"`
}

// ShopifyOrder is the order create payload. Prices are decimal strings.
type ShopifyOrder struct {
	Email              string               `json:"email,omitempty"`
	Currency           string               `json:"currency,omitempty"`
	Customer           *OrderCustomer       `json:"customer,omitempty"`
	LineItems          []OrderLineItem      `json:"line_items"`
	ShippingAddress    *ShopifyAddress      `json:"shipping_address,omitempty"`
	BillingAddress     *ShopifyAddress      `json:"billing_address,omitempty"`
	ShippingLines      []OrderShippingLine  `json:"shipping_lines,omitempty"`
	Transactions       []OrderTransaction   `json:"transactions,omitempty"`
	FinancialStatus    string               `json:"financial_status,omitempty"`
	Note               string               `json:"note,omitempty"`
	NoteAttributes     []OrderNoteAttribute `json:"note_attributes,omitempty"`
	Tags               string               `json:"tags,omitempty"`
	SourceName         string               `json:"source_name,omitempty"`
	SendReceipt        bool                 `json:"send_receipt"`
	InventoryBehaviour string               `json:"inventory_behaviour,omitempty"`
}

// OrderCustomer links an existing customer by id or embeds a new one.
type OrderCustomer struct {
	ID        int64  `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// OrderLineItem is a variant line with the unit price actually charged.
type OrderLineItem struct {
	VariantID int64  `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
	Title     string `json:"title,omitempty"`
}

// ShopifyAddress is a shipping or billing address.
type ShopifyAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	Province  string `json:"province,omitempty"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// OrderShippingLine is a fixed shipping charge.
type OrderShippingLine struct {
	Title string `json:"title"`
	Code  string `json:"code,omitempty"`
	Price string `json:"price"`
}

// OrderTransaction records the external payment.
type OrderTransaction struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Gateway       string `json:"gateway,omitempty"`
	Authorization string `json:"authorization,omitempty"`
}

// OrderNoteAttribute is one name/value pair shown on the order page.
type OrderNoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OrderResponse wraps a created order.
type OrderResponse struct {
	Order struct {
		ID          int64  `json:"id"`
		OrderNumber int64  `json:"order_number"`
		Name        string `json:"name"`
	} `json:"order"`
}

// === GraphQL ===

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// UserError is a mutation-level error returned by Storefront mutations.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

type discountLookupData struct {
	CodeDiscountNodeByCode *struct {
		ID           string       `json:"id"`
		CodeDiscount codeDiscount `json:"codeDiscount"`
	} `json:"codeDiscountNodeByCode"`
}

type codeDiscount struct {
	Typename     string `json:"__typename"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	CustomerGets *struct {
		Value struct {
			Typename   string   `json:"__typename"`
			Percentage *float64 `json:"percentage"`
			Amount     *struct {
				Amount       string `json:"amount"`
				CurrencyCode string `json:"currencyCode"`
			} `json:"amount"`
		} `json:"value"`
	} `json:"customerGets"`
}

type cartLinesData struct {
	Cart *struct {
		ID    string `json:"id"`
		Lines struct {
			Edges []struct {
				Node struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"lines"`
	} `json:"cart"`
}

type cartLinesRemoveData struct {
	CartLinesRemove struct {
		UserErrors []UserError `json:"userErrors"`
	} `json:"cartLinesRemove"`
}

const discountLookupQuery = `query DiscountByCode($code: String!) {
  codeDiscountNodeByCode(code: $code) {
    id
    codeDiscount {
      __typename
      ... on DiscountCodeBasic {
        title
        status
        customerGets {
          value {
            __typename
            ... on DiscountPercentage { percentage }
            ... on DiscountAmount { amount { amount currencyCode } }
          }
        }
      }
      ... on DiscountCodeBxgy { title status }
      ... on DiscountCodeFreeShipping { title status }
    }
  }
}`

const cartLinesQuery = `query CartLines($id: ID!) {
  cart(id: $id) {
    id
    lines(first: 100) { edges { node { id } } }
  }
}`

const cartLinesRemoveMutation = `mutation CartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
    userErrors { field message code }
  }
}`
