package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 把迁移操作格式化输出到终端，供 `arvalo migrate` 使用
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 创建 CLI，out 为 nil 时输出到 stdout
func NewCLI(migrator Migrator, out io.Writer) *CLI {
	if out == nil {
		out = os.Stdout
	}
	return &CLI{migrator: migrator, out: out}
}

// Up 执行全部待执行迁移
func (c *CLI) Up(ctx context.Context) error {
	before, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if err := c.migrator.Up(ctx); err != nil {
		return err
	}
	after, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if after == before {
		fmt.Fprintf(c.out, "Schema is up to date (version %d).\n", after)
		return nil
	}
	fmt.Fprintf(c.out, "Migrated from version %d to %d.\n", before, after)
	return nil
}

// Down 回滚一个版本，all 为 true 时回滚全部
func (c *CLI) Down(ctx context.Context, all bool) error {
	if all {
		if err := c.migrator.DownAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "All migrations rolled back.")
		return nil
	}
	if err := c.migrator.Down(ctx); err != nil {
		return err
	}
	v, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Rolled back to version %d.\n", v)
	return nil
}

// Goto 迁移到指定版本
func (c *CLI) Goto(ctx context.Context, version uint) error {
	if err := c.migrator.Goto(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Schema is at version %d.\n", version)
	return nil
}

// Force 改写版本号
func (c *CLI) Force(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Version forced to %d.\n", version)
	return nil
}

// Version 打印当前版本
func (c *CLI) Version(ctx context.Context) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if v == 0 {
		fmt.Fprintln(c.out, "No migrations applied yet.")
		return nil
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	fmt.Fprintf(c.out, "Current version: %d%s\n", v, suffix)
	return nil
}

// Status 打印迁移列表与概况
func (c *CLI) Status(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	applied := 0
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n%d applied, %d pending\n", applied, len(statuses)-applied)
	return nil
}
