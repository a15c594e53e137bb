package domain

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

type User struct {
	ID         int64  `db:"id" json:"id"`
	Email      string `db:"email" json:"email"`
	Role       string `db:"role" json:"role"`
	OrderCount int32  `db:"order_count" json:"order_count"`
}
