// Package storage persists subscriptions, analyzed feedback with extracted
// phrases, and the challenge delivery log in a single SQLite database.
package storage
