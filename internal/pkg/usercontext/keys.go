package usercontext

// Shared Locals keys used across handlers and middlewares
const (
	KeyUserID        = "user_id"
	KeyUsername      = "username"
	KeyIsAdmin       = "isAdmin"
	KeyFromProtected = "from_protected"
)
