/*
directory.go - Periodic user refresh from the identity directory

PURPOSE:
  Deployments backed by an external directory treat it as the source of
  truth for names, mail addresses, countries and the reporting chain.
  This job refreshes every known user from the directory so approvals
  and notifications follow reorganizations without manual edits.

  The store remains authoritative for the ArrivalDate: directories
  rarely carry it and the accrual pro-rating depends on it.
*/
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
)

// DirectorySyncJob refreshes user records from the directory.
type DirectorySyncJob struct {
	Store     leave.Store
	Directory directory.Directory
}

func (j *DirectorySyncJob) Run(ctx context.Context) error {
	users, err := j.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var errs []error
	updated := 0

	for _, user := range users {
		entry, err := j.Directory.Lookup(ctx, user.Login)
		if err != nil {
			// A user missing from the directory is surfaced, not removed:
			// leaving the record intact keeps their history readable.
			errs = append(errs, fmt.Errorf("lookup %s: %w", user.Login, err))
			continue
		}

		role, err := j.resolveRole(ctx, entry.DN)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve role for %s: %w", user.Login, err))
			continue
		}

		next := user
		next.Email = entry.Email
		next.Firstname = entry.Firstname
		next.Lastname = entry.Lastname
		next.ManagerID = j.managerID(ctx, users, entry.ManagerDN)
		next.Role = role
		if entry.Country != "" {
			next.Country = entry.Country
		}

		if next == user {
			continue
		}
		if err := j.Store.SaveUser(ctx, next); err != nil {
			errs = append(errs, fmt.Errorf("save user %s: %w", user.ID, err))
			continue
		}
		updated++
	}

	if updated > 0 {
		log.Printf("[DirectorySync] refreshed %d user(s)", updated)
	}
	return errors.Join(errs...)
}

func (j *DirectorySyncJob) resolveRole(ctx context.Context, dn string) (leave.Role, error) {
	if admin, err := j.Directory.IsAdmin(ctx, dn); err != nil {
		return "", err
	} else if admin {
		return leave.RoleAdmin, nil
	}
	if manager, err := j.Directory.IsManager(ctx, dn); err != nil {
		return "", err
	} else if manager {
		return leave.RoleManager, nil
	}
	return leave.RoleUser, nil
}

// managerID maps a directory manager dn back onto a known user id. An
// unknown manager clears the link rather than keeping a stale one.
func (j *DirectorySyncJob) managerID(ctx context.Context, users []leave.User, managerDN string) string {
	if managerDN == "" {
		return ""
	}
	for _, u := range users {
		if u.ID == managerDN || u.Login == managerDN {
			return u.ID
		}
	}
	// LDAP manager attributes are dns; match on the uid component.
	if entry, err := j.Directory.Lookup(ctx, uidFromDN(managerDN)); err == nil {
		for _, u := range users {
			if u.Login == uidFromDN(entry.DN) {
				return u.ID
			}
		}
	}
	return ""
}

// uidFromDN extracts the uid value from a dn like
// "uid=bob,ou=people,dc=example,dc=com". Plain logins pass through.
func uidFromDN(dn string) string {
	for _, part := range strings.Split(dn, ",") {
		if v, ok := strings.CutPrefix(part, "uid="); ok {
			return v
		}
	}
	return dn
}
