// Package middleware provides HTTP middleware for the status listener.
package middleware
