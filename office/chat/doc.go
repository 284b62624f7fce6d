// Package chat models the office's general chat and private messages.
//
// General messages are kept in a bounded History that evicts the oldest
// entry once full; private messages are delivered and then discarded, so
// they never touch the History.
package chat
