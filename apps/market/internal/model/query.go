package model

// OrderBy selects the ordering of a ListOrders query
type OrderBy int

const (
	OrderByCreated OrderBy = iota
	OrderByPriceAsc
	OrderByPriceDesc
	OrderByExpiration
)

// OrderQuery filters stored orders. Zero values mean "no filter".
type OrderQuery struct {
	ContractAddress string
	TokenID         string
	Maker           string
	IsSell          *bool
	Verified        *bool
	ActiveAt        int64 // only orders with expiration_time > ActiveAt
	OrderBy         OrderBy
	Limit           int
}
