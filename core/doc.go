// Package core provides core types used throughout pgGit.
//
// # Identity
//
// Identity identifies the author of commits:
//
//	identity := core.Identity{
//	    Name:  "John Doe",
//	    Email: "john@example.com",
//	}
package core
