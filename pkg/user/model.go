package user

import (
	"time"

	"github.com/uptrace/bun"
)

// UserDao is a data access object that maps directly to the 'users' table in PostgreSQL.
type UserDao struct {
	bun.BaseModel `bun:"table:users,alias:u"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Email         string    `bun:"email,unique,notnull,type:varchar(255)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toUserDao(usr *User) *UserDao {
	return &UserDao{
		ID:    usr.ID,
		Email: usr.Email,
	}
}

func toUser(dao *UserDao) *User {
	return &User{
		ID:        dao.ID,
		Email:     dao.Email,
		CreatedAt: dao.CreatedAt,
	}
}
