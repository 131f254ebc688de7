// Package ldap implements the directory contract against an LDAP
// server. It is feature-flagged: deployments without a directory use
// directory.StoreDirectory instead.
package ldap

import (
	"context"
	"fmt"

	ldapv3 "github.com/go-ldap/ldap/v3"

	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
)

// Client resolves users from LDAP. Each call dials a fresh connection;
// the server is close and the call volume is a handful per request.
type Client struct {
	URL          string // e.g. "ldaps://ldap.example.com:636"
	BindDN       string
	BindPassword string
	BaseDN       string // e.g. "ou=people,dc=example,dc=com"
	ManagerGroup string // group dn whose members are managers
	AdminGroup   string // group dn whose members are admins
}

var _ directory.Directory = (*Client)(nil)

func (c *Client) Lookup(ctx context.Context, login string) (*directory.Entry, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := ldapv3.NewSearchRequest(
		c.BaseDN,
		ldapv3.ScopeWholeSubtree, ldapv3.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(uid=%s)", ldapv3.EscapeFilter(login)),
		[]string{"mail", "givenName", "sn", "manager", "c"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap search %q: %w", login, err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("%w: login %s", leave.ErrNotFound, login)
	}

	e := res.Entries[0]
	return &directory.Entry{
		Email:     e.GetAttributeValue("mail"),
		Firstname: e.GetAttributeValue("givenName"),
		Lastname:  e.GetAttributeValue("sn"),
		DN:        e.DN,
		Country:   leave.Country(e.GetAttributeValue("c")),
		ManagerDN: e.GetAttributeValue("manager"),
	}, nil
}

func (c *Client) IsManager(ctx context.Context, dn string) (bool, error) {
	return c.memberOf(ctx, dn, c.ManagerGroup)
}

func (c *Client) IsAdmin(ctx context.Context, dn string) (bool, error) {
	return c.memberOf(ctx, dn, c.AdminGroup)
}

func (c *Client) memberOf(ctx context.Context, dn, group string) (bool, error) {
	if group == "" {
		return false, nil
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	req := ldapv3.NewSearchRequest(
		group,
		ldapv3.ScopeBaseObject, ldapv3.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(member=%s)", ldapv3.EscapeFilter(dn)),
		[]string{"dn"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return false, fmt.Errorf("ldap group search: %w", err)
	}
	return len(res.Entries) > 0, nil
}

func (c *Client) dial(ctx context.Context) (*ldapv3.Conn, error) {
	conn, err := ldapv3.DialURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("ldap dial %s: %w", c.URL, err)
	}
	if c.BindDN != "" {
		if err := conn.Bind(c.BindDN, c.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ldap bind: %w", err)
		}
	}
	return conn, nil
}
