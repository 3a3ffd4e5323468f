package models

import (
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

// Column sizes of the users table
const (
	UsernameMaxLen = 256
	EmailMaxLen    = 120
	SSHKeyMaxLen   = 500
	CommentMaxLen  = 500
)

// User represents an administrator allowed to connect through passhport
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       int64          `bun:"id,pk,autoincrement" json:"id"`
	Username sql.NullString `bun:"username,unique,type:varchar(256)" json:"-"`
	Email    string         `bun:"email,notnull,unique,type:varchar(120)" json:"email"`
	SSHKey   string         `bun:"sshkey,notnull,unique,type:varchar(500)" json:"sshkey"`
	Comment  string         `bun:"comment,type:varchar(500)" json:"comment"`
}

// String renders the record the way the show endpoint returns it
func (u User) String() string {
	return fmt.Sprintf("Email: %s\nSSH key: %s\nComment: %s", u.Email, u.SSHKey, u.Comment)
}

// NullableUsername converts an optional username to its column value.
// Empty usernames are stored as NULL so that the unique index ignores them.
func NullableUsername(username string) sql.NullString {
	return sql.NullString{String: username, Valid: username != ""}
}
