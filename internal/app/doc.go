// Package app wires the split ledger's services, storage and background
// workers into one lifecycle-managed application.
package app
