// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlclient

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/guardmig/guardmig/sql/migrate"
)

type (
	// Client provides the common functionalities for applying changes on a
	// database. Note, the Client is dialect specific and should be instantiated
	// using a call to Open.
	Client struct {
		// Name used when creating the client.
		Name string

		// DB used for creating the client.
		DB *sql.DB

		// URL holds an enriched url.URL.
		URL *URL

		// A migration driver for the attached dialect.
		migrate.Driver
	}

	// URL extends the standard url.URL with additional
	// connection information attached by the Opener (if any).
	URL struct {
		*url.URL

		// The DSN used for opening the connection.
		DSN string

		// The Schema this client is connected to. Changes that do
		// not qualify their objects are applied on this schema.
		Schema string
	}

	// URLParser parses an url.URL into an enriched URL and attaches
	// additional info to it.
	URLParser interface {
		ParseURL(*url.URL) *URL
	}

	// URLParserFunc allows using a function as an URLParser.
	URLParserFunc func(*url.URL) *URL
)

// ParseURL calls f(u).
func (f URLParserFunc) ParseURL(u *url.URL) *URL {
	return f(u)
}

// Redacted returns the URL string with its password masked.
func (u *URL) Redacted() string {
	if u == nil || u.URL == nil {
		return ""
	}
	return u.URL.Redacted()
}

// Close closes the underlying database connection and the migration
// driver in case it implements the io.Closer interface.
func (c *Client) Close() (err error) {
	if c, ok := c.Driver.(io.Closer); ok {
		err = c.Close()
	}
	if c.DB == nil {
		return err
	}
	if cerr := c.DB.Close(); cerr != nil {
		if err != nil {
			cerr = fmt.Errorf("%w: %v", err, cerr)
		}
		err = cerr
	}
	return err
}

type (
	// Opener opens a migration driver by the given URL.
	Opener interface {
		Open(ctx context.Context, u *url.URL) (*Client, error)
	}

	// OpenerFunc allows using a function as an Opener.
	OpenerFunc func(context.Context, *url.URL) (*Client, error)

	driver struct {
		Opener
		name   string
		parser URLParser
	}
)

// Open calls f(ctx, u).
func (f OpenerFunc) Open(ctx context.Context, u *url.URL) (*Client, error) {
	return f(ctx, u)
}

var drivers sync.Map

// Open opens a client by its provided url string.
func Open(ctx context.Context, s string) (*Client, error) {
	u, err := ParseURL(s)
	if err != nil {
		return nil, err
	}
	v, ok := drivers.Load(u.Scheme)
	if !ok {
		return nil, fmt.Errorf("sql/sqlclient: unknown driver %q. See: sql/sqlclient.Drivers", u.Scheme)
	}
	client, err := v.(*driver).Open(ctx, u)
	if err != nil {
		return nil, err
	}
	if client.URL == nil {
		client.URL = v.(*driver).parser.ParseURL(u)
	}
	if client.Name == "" {
		client.Name = v.(*driver).name
	}
	return client, nil
}

// ParseURL is similar to url.Parse but returns a
// descriptive error in case of a missing scheme.
func ParseURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("sql/sqlclient: parse open url: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("sql/sqlclient: missing driver in url %q. See: sql/sqlclient.Drivers", u.Redacted())
	}
	return u, nil
}

// Drivers returns the sorted list of registered names and flavours.
func Drivers() []string {
	var names []string
	drivers.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

type (
	registerOptions struct {
		flavours []string
		parser   URLParser
	}
	// RegisterOption allows configuring the Opener
	// registration using functional options.
	RegisterOption func(*registerOptions)
)

// RegisterFlavours allows registering additional flavours
// (i.e. names), accepted to open clients.
func RegisterFlavours(flavours ...string) RegisterOption {
	return func(opts *registerOptions) {
		opts.flavours = flavours
	}
}

// RegisterURLParser allows registering a function for parsing
// the url.URL and attach additional info to the extended URL.
func RegisterURLParser(p URLParser) RegisterOption {
	return func(opts *registerOptions) {
		opts.parser = p
	}
}

// Register registers a client Opener (i.e. creator) with the given name.
func Register(name string, opener Opener, opts ...RegisterOption) {
	if opener == nil {
		panic("sql/sqlclient: Register opener is nil")
	}
	opt := &registerOptions{
		// Default parser.
		parser: URLParserFunc(func(u *url.URL) *URL {
			return &URL{URL: u, DSN: u.String()}
		}),
	}
	for i := range opts {
		opts[i](opt)
	}
	d := &driver{Opener: opener, name: name, parser: opt.parser}
	for _, f := range append(opt.flavours, name) {
		if _, ok := drivers.Load(f); ok {
			panic("sql/sqlclient: Register called twice for " + f)
		}
		drivers.Store(f, d)
	}
}
