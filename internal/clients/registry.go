// Package clients keeps the registry of client databases the query worker
// connects to. Database passwords are stored encrypted.
package clients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

const Collection = "clients"

var (
	ErrNameRequired  = errors.New("client name is required")
	ErrDuplicateName = errors.New("client name already registered")
)

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

type Client struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	DBHost string `json:"dbHost"`
	DBName string `json:"dbName"`
	DBUser string `json:"dbUser"`
	// DBPassword is the encrypted token, never the plain password.
	DBPassword string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Registration struct {
	Name     string
	DBHost   string
	DBName   string
	DBUser   string
	Password string
}

type Registry struct {
	docs   docstore.Store
	cipher Encrypter
	now    func() time.Time
}

func NewRegistry(docs docstore.Store, cipher Encrypter) *Registry {
	return &Registry{docs: docs, cipher: cipher, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Registry) Add(ctx context.Context, reg Registration) (Client, error) {
	name := strings.TrimSpace(reg.Name)
	if name == "" {
		return Client{}, ErrNameRequired
	}
	existing, err := r.docs.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{docstore.Where("name", name)},
		Limit:      1,
	})
	if err != nil {
		return Client{}, err
	}
	if len(existing) > 0 {
		return Client{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	token := ""
	if reg.Password != "" {
		if r.cipher == nil {
			return Client{}, errors.New("no credential cipher configured")
		}
		token, err = r.cipher.Encrypt(reg.Password)
		if err != nil {
			return Client{}, fmt.Errorf("encrypt password: %w", err)
		}
	}

	c := Client{
		ID:         uuid.NewString(),
		Name:       name,
		DBHost:     reg.DBHost,
		DBName:     reg.DBName,
		DBUser:     reg.DBUser,
		DBPassword: token,
		CreatedAt:  r.now(),
	}
	if err := r.docs.Create(ctx, Collection, c.ID, fields(c)); err != nil {
		return Client{}, err
	}
	return c, nil
}

// List returns every client ordered by name.
func (r *Registry) List(ctx context.Context) ([]Client, error) {
	docs, err := r.docs.Query(ctx, docstore.Query{Collection: Collection})
	if err != nil {
		return nil, err
	}
	out := make([]Client, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Client, error) {
	d, err := r.docs.Get(ctx, Collection, id)
	if err != nil {
		return Client{}, fmt.Errorf("client %s: %w", id, err)
	}
	return fromDocument(d), nil
}

// Password decrypts the stored database password of a client.
func (r *Registry) Password(c Client) (string, error) {
	if c.DBPassword == "" {
		return "", nil
	}
	if r.cipher == nil {
		return "", errors.New("no credential cipher configured")
	}
	return r.cipher.Decrypt(c.DBPassword)
}

func fields(c Client) *ordered.Map {
	return ordered.FromPairs(
		"name", c.Name,
		"dbHost", c.DBHost,
		"dbName", c.DBName,
		"dbUser", c.DBUser,
		"dbPassword", c.DBPassword,
		"createdAt", c.CreatedAt,
	)
}

func fromDocument(d docstore.Document) Client {
	c := Client{
		ID:         d.ID,
		Name:       d.Data.String("name"),
		DBHost:     d.Data.String("dbHost"),
		DBName:     d.Data.String("dbName"),
		DBUser:     d.Data.String("dbUser"),
		DBPassword: d.Data.String("dbPassword"),
		CreatedAt:  d.CreateTime,
	}
	if v, ok := d.Data.Get("createdAt"); ok {
		if t, ok := v.(time.Time); ok {
			c.CreatedAt = t
		}
	}
	return c
}
