// Package engine identifies the engines connecting to the driver. It holds
// the closed set of engine roles, the table of commands each role answers,
// and the registry that accepts connections and binds each one to its role.
package engine
