// Package view renders the product catalog to a terminal and turns user actions
// into store operations. Views never change the collection themselves.
package view

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/abgdnv/productcatalog/internal/product/model"
	"github.com/abgdnv/productcatalog/internal/product/store"
)

// Catalog is the store capability the views depend on.
type Catalog interface {
	Snapshot() store.Snapshot
	Find(id string) (model.Product, bool)
	Refresh(ctx context.Context)
	LoadOne(ctx context.Context, id string) (model.Product, bool)
	Create(ctx context.Context, draft model.Draft) (model.Product, bool)
	Update(ctx context.Context, id string, product model.Product) (model.Product, bool)
	Delete(ctx context.Context, id string) bool
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Navigator switches to the product list, showing notice if not empty.
type Navigator interface {
	ToList(notice string)
}

// PromptConfirmer reads the answer from in, anything but y or yes is a no.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptConfirmer creates a Confirmer that prompts on out and reads from in.
func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

func (c *PromptConfirmer) Confirm(prompt string) bool {
	_, _ = fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// ListNavigator prints the notice followed by the rendered list.
type ListNavigator struct {
	out  io.Writer
	list *ProductList
}

// NewListNavigator creates a Navigator rendering list to out.
func NewListNavigator(out io.Writer, list *ProductList) *ListNavigator {
	return &ListNavigator{out: out, list: list}
}

func (n *ListNavigator) ToList(notice string) {
	if notice != "" {
		_, _ = fmt.Fprintln(n.out, notice)
	}
	_ = n.list.Render()
}

// lifetime cancels the work a view started once the view goes away.
type lifetime struct {
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *lifetime) init() {
	l.once.Do(func() {
		l.ctx, l.cancel = context.WithCancel(context.Background())
	})
}

// bind derives a context from ctx that is also cancelled by end.
func (l *lifetime) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	l.init()
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (l *lifetime) end() {
	l.init()
	l.cancel()
}

func (l *lifetime) ended() bool {
	l.init()
	return l.ctx.Err() != nil
}

// RenderProduct writes the card of a single product to w.
func RenderProduct(w io.Writer, p model.Product) error {
	if _, err := fmt.Fprintf(w, "[%s] %s\n", p.ID, p.Name); err != nil {
		return err
	}
	if p.Description != "" {
		if _, err := fmt.Fprintf(w, "    %s\n", p.Description); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "    %s\n", p.FormatPrice())
	return err
}
