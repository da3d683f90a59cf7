// Package persistence stores client session state in a JSON file.
//
// A session records the server subscriptions a client created, so that a
// restarted client can resume their streams instead of creating new ones.
// Subscriptions outlive the client connection on the server; only their
// ids and registered elements need to be remembered locally.
package persistence
