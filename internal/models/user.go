package models

// Role decides which quotas apply to a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

type User struct {
	Base
	Name string `json:"name" gorm:"size:128"`
	Role Role   `json:"role" gorm:"type:varchar(32);default:user;not null"`
}

func (User) TableName() string { return "users" }
