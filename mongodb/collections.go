package mongodb

const (
	UsersCollection        = "users"        // Webmaker accounts
	ApplicationsCollection = "applications" // audience registry
	LoginTokensCollection  = "login_tokens" // one-time login codes
)
