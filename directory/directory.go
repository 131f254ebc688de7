// Package directory defines the identity directory contract. The core
// never parses directory-specific schemas: it only asks for a user's
// coordinates and whether a dn is a manager or an admin. The LDAP
// adapter lives in the ldap subpackage; deployments that keep users in
// the store use StoreDirectory.
package directory

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/leave"
)

// Entry is what a lookup returns.
type Entry struct {
	Email     string
	Firstname string
	Lastname  string
	DN        string
	Country   leave.Country
	ManagerDN string
}

// Directory resolves users and their relationships.
type Directory interface {
	Lookup(ctx context.Context, login string) (*Entry, error)
	IsManager(ctx context.Context, dn string) (bool, error)
	IsAdmin(ctx context.Context, dn string) (bool, error)
}

// StoreDirectory serves directory lookups from the user store, for
// deployments without an external directory.
type StoreDirectory struct {
	Users leave.UserStore
}

func (d *StoreDirectory) Lookup(ctx context.Context, login string) (*Entry, error) {
	users, err := d.Users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Login == login {
			return &Entry{
				Email:     u.Email,
				Firstname: u.Firstname,
				Lastname:  u.Lastname,
				DN:        u.ID,
				Country:   u.Country,
				ManagerDN: u.ManagerID,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: login %s", leave.ErrNotFound, login)
}

func (d *StoreDirectory) IsManager(ctx context.Context, dn string) (bool, error) {
	u, err := d.Users.GetUser(ctx, dn)
	if err != nil {
		return false, err
	}
	return u.Role == leave.RoleManager || u.Role == leave.RoleAdmin, nil
}

func (d *StoreDirectory) IsAdmin(ctx context.Context, dn string) (bool, error) {
	u, err := d.Users.GetUser(ctx, dn)
	if err != nil {
		return false, err
	}
	return u.Role == leave.RoleAdmin, nil
}
