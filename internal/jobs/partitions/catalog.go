package partitions

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Catalog lists, creates and drops the monthly partitions of a table.
type Catalog interface {
	ListPartitions(ctx context.Context, table string) ([]string, error)
	CreatePartition(ctx context.Context, p Partition) error
	DropPartition(ctx context.Context, p Partition) error
}

// duplicate_table, raised when a racing instance created the partition
// between our existence check and CREATE.
const pgDuplicateTable = "42P07"

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type PostgresCatalog struct {
	db *gorm.DB
}

func NewPostgresCatalog(db *gorm.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) ListPartitions(ctx context.Context, table string) ([]string, error) {
	var names []string
	err := c.db.WithContext(ctx).Raw(`
		SELECT child.relname
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		JOIN pg_namespace ns ON parent.relnamespace = ns.oid
		WHERE parent.relname = ? AND ns.nspname = current_schema()
		ORDER BY child.relname
	`, table).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", table, err)
	}
	return names, nil
}

func (c *PostgresCatalog) CreatePartition(ctx context.Context, p Partition) error {
	if !identifier.MatchString(p.Table) || !identifier.MatchString(p.Name) {
		return fmt.Errorf("invalid partition identifier %q of %q", p.Name, p.Table)
	}
	err := c.db.WithContext(ctx).Exec(createPartitionSQL(p)).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateTable {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create partition %s: %w", p.Name, err)
	}
	return nil
}

// Bounds carry an explicit UTC offset; a bare date is read in the session
// TimeZone.
const boundLayout = "2006-01-02 15:04:05+00"

func createPartitionSQL(p Partition) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		p.Name, p.Table, p.From.UTC().Format(boundLayout), p.To.UTC().Format(boundLayout),
	)
}

func (c *PostgresCatalog) DropPartition(ctx context.Context, p Partition) error {
	if !identifier.MatchString(p.Name) {
		return fmt.Errorf("invalid partition identifier %q", p.Name)
	}
	if err := c.db.WithContext(ctx).Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, p.Name)).Error; err != nil {
		return fmt.Errorf("drop partition %s: %w", p.Name, err)
	}
	return nil
}
