// Package model contains the shared interfaces of the proxy.
package model
