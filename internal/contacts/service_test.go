package contacts

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	byName map[string]Contact
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byName: make(map[string]Contact)}
}

func (r *memoryRepo) Upsert(ctx context.Context, c Contact) (Contact, error) {
	now := time.Now()
	if existing, ok := r.byName[c.Name]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		c.ID = r.nextID
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.byName[c.Name] = c
	return c, nil
}

func (r *memoryRepo) List(ctx context.Context, kind Kind) ([]Contact, error) {
	var out []Contact
	for _, c := range r.byName {
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, name string) (Contact, error) {
	c, ok := r.byName[name]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) Delete(ctx context.Context, name string) error {
	if _, ok := r.byName[name]; !ok {
		return ErrNotFound
	}
	delete(r.byName, name)
	return nil
}

func TestUpsertOverwritesByName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	first, err := svc.Upsert(ctx, Contact{Name: "Rossi Impianti SRL", City: "Brescia", TaxID: "01234560987"})
	require.NoError(t, err)
	require.Equal(t, KindClient, first.Kind)

	second, err := svc.Upsert(ctx, Contact{Name: "Rossi Impianti SRL", City: "Milano"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	got, err := svc.Get(ctx, "Rossi Impianti SRL")
	require.NoError(t, err)
	require.Equal(t, "Milano", got.City)
	require.Empty(t, got.TaxID, "last write wins, fields are not merged")
}

func TestUpsertValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, Contact{Name: "   "})
	require.Error(t, err)

	_, err = svc.Upsert(ctx, Contact{Name: "Verdi", Kind: Kind("PARTNER")})
	require.Error(t, err)
}

func TestListFiltersByKind(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, Contact{Name: "Rossi Impianti SRL", Kind: KindClient})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, Contact{Name: "Cartoleria Verdi", Kind: KindSupplier})
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	suppliers, err := svc.List(ctx, KindSupplier)
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	require.Equal(t, "Cartoleria Verdi", suppliers[0].Name)

	_, err = svc.List(ctx, Kind("PARTNER"))
	require.Error(t, err)
}

func TestDeleteContact(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, Contact{Name: "Rossi Impianti SRL"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "Rossi Impianti SRL"))
	require.ErrorIs(t, svc.Delete(ctx, "Rossi Impianti SRL"), ErrNotFound)

	_, err = svc.Get(ctx, "Rossi Impianti SRL")
	require.ErrorIs(t, err, ErrNotFound)
}
