/*
Package domain defines the core entities of the session coordination layer:
the Session record, its workflow states, the error taxonomy, and the shared
expiry predicate used by both lazy and active cleanup.
*/
package domain
