package player

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAccounts() []Account {
	return []Account{
		{User: User{ID: "admin", Username: "admin", Name: "Admin User", Role: RoleAdmin, Panchayat: "Central Office", SustainabilityScore: 100, Level: 10, TotalPoints: 5000}, Password: "admin123"},
		{User: User{ID: "farmer1", Username: "farmer1", Name: "Ravi Kumar", Role: RoleFarmer, Panchayat: "Thiruvalla", SustainabilityScore: 78, Level: 5, TotalPoints: 1560,
			Badges: []Badge{{ID: "water-saver", Name: "Water Saver", Icon: "💧", Tier: TierSilver}}}, Password: "demo123"},
		{User: User{ID: "farmer2", Username: "farmer2", Name: "Priya Nair", Panchayat: "Kumbakonam", SustainabilityScore: 85, Level: 6, TotalPoints: 1870}, Password: "demo123"},
	}
}

func newTestRoster(t *testing.T) *Roster {
	t.Helper()
	r, err := NewRoster(testAccounts(), bcrypt.MinCost)
	require.NoError(t, err)
	return r
}

func TestAuthenticate(t *testing.T) {
	r := newTestRoster(t)

	tests := []struct {
		name     string
		username string
		password string
		wantID   string
	}{
		{"admin ok", "admin", "admin123", "admin"},
		{"farmer ok", "farmer1", "demo123", "farmer1"},
		{"admin with farmer password", "admin", "demo123", ""},
		{"farmer with admin password", "farmer1", "admin123", ""},
		{"unknown user", "ghost", "demo123", ""},
		{"case sensitive username", "Farmer1", "demo123", ""},
		{"case sensitive password", "farmer1", "DEMO123", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := r.Authenticate(tt.username, tt.password)
			if tt.wantID == "" {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				assert.Empty(t, u.ID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, u.ID)
		})
	}
}

func TestNewRoster_DefaultsRoleAndRejectsDuplicates(t *testing.T) {
	r := newTestRoster(t)
	u, err := r.Get("farmer2")
	require.NoError(t, err)
	assert.Equal(t, RoleFarmer, u.Role)
	assert.NotNil(t, u.Badges)

	accs := testAccounts()
	accs = append(accs, accs[1])
	_, err = NewRoster(accs, bcrypt.MinCost)
	assert.Error(t, err)

	_, err = NewRoster([]Account{{Password: "x"}}, bcrypt.MinCost)
	assert.Error(t, err)
}

func TestRoster_GetReturnsCopy(t *testing.T) {
	r := newTestRoster(t)
	u, err := r.Get("farmer1")
	require.NoError(t, err)
	u.Badges[0].Name = "mutated"
	u.TotalPoints = 0

	again, _ := r.Get("farmer1")
	assert.Equal(t, "Water Saver", again.Badges[0].Name)
	assert.Equal(t, 1560, again.TotalPoints)

	_, err = r.Get("nobody")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestRoster_AllAndFarmers(t *testing.T) {
	r := newTestRoster(t)
	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "admin", all[0].ID)

	farmers := r.Farmers()
	require.Len(t, farmers, 2)
	for _, f := range farmers {
		assert.Equal(t, RoleFarmer, f.Role)
	}
	assert.Equal(t, 3, r.Len())
}

func TestRoster_UpdateKeepsIdentity(t *testing.T) {
	r := newTestRoster(t)
	u, err := r.Update("farmer1", func(u *User) {
		u.TotalPoints += 150
		u.ID = "hijack"
		u.Role = RoleAdmin
	})
	require.NoError(t, err)
	assert.Equal(t, "farmer1", u.ID)
	assert.Equal(t, RoleFarmer, u.Role)
	assert.Equal(t, 1710, u.TotalPoints)

	_, err = r.Update("nobody", func(*User) {})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRoster_ConcurrentUpdates(t *testing.T) {
	r := newTestRoster(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update("farmer2", func(u *User) { u.TotalPoints++ })
			_ = r.All()
		}()
	}
	wg.Wait()
	u, _ := r.Get("farmer2")
	assert.Equal(t, 1920, u.TotalPoints)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0, 300, 10))
	assert.Equal(t, 1, LevelFor(299, 300, 10))
	assert.Equal(t, 3, LevelFor(920, 300, 10))
	assert.Equal(t, 5, LevelFor(1560, 300, 10))
	assert.Equal(t, 6, LevelFor(1870, 300, 10))
	assert.Equal(t, 10, LevelFor(5000, 300, 10))
	assert.Equal(t, 1, LevelFor(5000, 0, 10))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-4))
	assert.Equal(t, 55, ClampScore(55))
	assert.Equal(t, 100, ClampScore(103))
}

func TestUser_HasBadge(t *testing.T) {
	u := User{Badges: []Badge{{ID: "a"}}}
	assert.True(t, u.HasBadge("a"))
	assert.False(t, u.HasBadge("b"))
}
