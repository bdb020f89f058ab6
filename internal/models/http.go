package models

// LoginHeader carries the user's login to a server running without tailnet
// identity.
const LoginHeader = "X-Liftlog-Login"
