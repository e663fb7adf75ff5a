package domain

import "time"

// Application is a registered caller of the login service. The audience
// (typically the application's URL) is the primary key. The secret is
// generated server-side at registration, shown to the owner exactly once,
// and only its bcrypt hash is stored.
type Application struct {
	Audience   string    `bson:"_id"`
	SecretHash []byte    `bson:"secret_hash"`
	CreatedAt  time.Time `bson:"created_at"`
}
