package api

type contextKey int

//TransactionKey is the context key for the *sql.Tx used by API calls
const TransactionKey contextKey = 0
