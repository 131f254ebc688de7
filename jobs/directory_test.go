package jobs_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/jobs"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// DIRECTORY SYNC
// =============================================================================

type fakeDirectory struct {
	entries  map[string]*directory.Entry
	managers map[string]bool
	admins   map[string]bool
}

func (d *fakeDirectory) Lookup(ctx context.Context, login string) (*directory.Entry, error) {
	e, ok := d.entries[login]
	if !ok {
		return nil, fmt.Errorf("%w: login %s", leave.ErrNotFound, login)
	}
	return e, nil
}

func (d *fakeDirectory) IsManager(ctx context.Context, dn string) (bool, error) {
	return d.managers[dn], nil
}

func (d *fakeDirectory) IsAdmin(ctx context.Context, dn string) (bool, error) {
	return d.admins[dn], nil
}

func newDirectorySync(t *testing.T) (*jobs.DirectorySyncJob, *memory.Memory, *fakeDirectory) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, leave.User{
		ID: "alice", Login: "alice", Firstname: "Alice", Lastname: "Durand",
		Email: "alice@example.com", Country: leave.CountryFR, Role: leave.RoleUser,
		ManagerID: "bob",
	}))
	require.NoError(t, store.SaveUser(ctx, leave.User{
		ID: "bob", Login: "bob", Firstname: "Bob", Lastname: "Martin",
		Email: "bob@example.com", Country: leave.CountryFR, Role: leave.RoleManager,
	}))

	dir := &fakeDirectory{
		entries: map[string]*directory.Entry{
			"alice": {
				DN: "uid=alice,ou=people,dc=example,dc=com",
				Email: "alice@example.com", Firstname: "Alice", Lastname: "Durand",
				Country: leave.CountryFR, ManagerDN: "uid=bob,ou=people,dc=example,dc=com",
			},
			"bob": {
				DN: "uid=bob,ou=people,dc=example,dc=com",
				Email: "bob@example.com", Firstname: "Bob", Lastname: "Martin",
				Country: leave.CountryFR,
			},
		},
		managers: map[string]bool{"uid=bob,ou=people,dc=example,dc=com": true},
		admins:   map[string]bool{},
	}
	job := &jobs.DirectorySyncJob{Store: store, Directory: dir}
	return job, store, dir
}

func TestDirectorySyncUpdatesChangedFields(t *testing.T) {
	// GIVEN the directory carries a new surname, mail address and manager for alice
	job, store, dir := newDirectorySync(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, leave.User{
		ID: "carol", Login: "carol", Firstname: "Carol", Lastname: "Weiss",
		Email: "carol@example.com", Country: leave.CountryFR, Role: leave.RoleManager,
	}))
	dir.entries["carol"] = &directory.Entry{
		DN: "uid=carol,ou=people,dc=example,dc=com",
		Email: "carol@example.com", Firstname: "Carol", Lastname: "Weiss",
		Country: leave.CountryFR,
	}
	dir.managers["uid=carol,ou=people,dc=example,dc=com"] = true

	dir.entries["alice"].Lastname = "Durand-Petit"
	dir.entries["alice"].Email = "alice.durand@example.com"
	dir.entries["alice"].ManagerDN = "uid=carol,ou=people,dc=example,dc=com"

	// WHEN the sync runs
	require.NoError(t, job.Run(ctx))

	// THEN alice follows the directory, bob is untouched
	alice, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Durand-Petit", alice.Lastname)
	assert.Equal(t, "alice.durand@example.com", alice.Email)
	assert.Equal(t, "carol", alice.ManagerID)

	bob, err := store.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, leave.RoleManager, bob.Role)
}

func TestDirectorySyncPromotesAdmins(t *testing.T) {
	// GIVEN alice was added to the admin group
	job, store, dir := newDirectorySync(t)
	ctx := context.Background()

	dir.admins["uid=alice,ou=people,dc=example,dc=com"] = true

	// WHEN the sync runs
	require.NoError(t, job.Run(ctx))

	// THEN her role follows the group membership
	alice, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, leave.RoleAdmin, alice.Role)
}

func TestDirectorySyncKeepsMissingUsers(t *testing.T) {
	// GIVEN alice no longer resolves in the directory
	job, store, dir := newDirectorySync(t)
	ctx := context.Background()

	delete(dir.entries, "alice")

	// WHEN the sync runs
	err := job.Run(ctx)

	// THEN the failure is surfaced but her record stays intact
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrNotFound)

	alice, getErr := store.GetUser(ctx, "alice")
	require.NoError(t, getErr)
	assert.Equal(t, "Durand", alice.Lastname)
	assert.Equal(t, "bob", alice.ManagerID)
}

func TestDirectorySyncClearsUnknownManager(t *testing.T) {
	// GIVEN alice reports to a dn nobody in the store matches
	job, store, dir := newDirectorySync(t)
	ctx := context.Background()

	dir.entries["alice"].ManagerDN = "uid=zed,ou=people,dc=example,dc=com"

	// WHEN the sync runs
	require.NoError(t, job.Run(ctx))

	// THEN the stale manager link is cleared
	alice, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, alice.ManagerID)
}
