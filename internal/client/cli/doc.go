// Package cli implements the interactive gophauth command-line client.
//
// The REPL reads one command per line and drives the account API through a
// client.Client: register, verify, login, profile, logout, forgot and reset.
// Passwords are read from the terminal without echo and wiped after use. A
// background watcher pings the server and reports online/offline changes.
package cli
