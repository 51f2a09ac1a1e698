package retrieval

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"
)

// vecGlyphs is a pure-Go, in-memory stand-in for the sqlite-vec extension's
// vec0 virtual table, adapted from theRebelliousNerd-codenerd's
// internal/store/vec_compat.go so KNN-shaped queries keep working against
// the teacher's cgo-free modernc.org/sqlite driver. It is a derived index:
// rebuilt from the glyphs table's blob columns on demand, never
// authoritative, per spec.md §4.2's embedding invariant.
var (
	registerVecOnce sync.Once
	vecTablesMu     sync.RWMutex
	vecTables       = make(map[string]*vecTable)
)

// RegisterVecCompat installs the vec_glyphs virtual table module and the
// vector_distance_cos scalar function. Safe to call multiple times; the
// underlying registration only happens once per process.
func RegisterVecCompat() {
	registerVecOnce.Do(func() {
		_ = vtab.RegisterModule(nil, "vec_glyphs", &vecModule{})
		_ = sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, vecDistanceCos)
	})
}

type vecModule struct{}

type vecRow struct {
	rowid     int64
	glyphID   int64
	embedding []byte
}

type vecTable struct {
	name      string
	mu        sync.RWMutex
	rows      []vecRow
	nextRowID int64
}

func (m *vecModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *vecModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *vecModule) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec_glyphs: insufficient args")
	}
	name := args[2]
	if err := ctx.Declare("CREATE TABLE x(glyph_id INTEGER, embedding BLOB)"); err != nil {
		return nil, err
	}

	vecTablesMu.Lock()
	defer vecTablesMu.Unlock()
	tbl, ok := vecTables[name]
	if !ok {
		tbl = &vecTable{name: name, nextRowID: 1}
		vecTables[name] = tbl
	}
	return tbl, nil
}

func (t *vecTable) BestIndex(info *vtab.IndexInfo) error {
	info.EstimatedRows = int64(len(t.rows))
	return nil
}

func (t *vecTable) Open() (vtab.Cursor, error) { return &vecCursor{tbl: t, idx: -1}, nil }
func (t *vecTable) Disconnect() error          { return nil }
func (t *vecTable) Destroy() error             { return nil }

func (t *vecTable) Insert(cols []vtab.Value, rowid *int64) error {
	if len(cols) < 2 {
		return fmt.Errorf("vec_glyphs: insert expects 2 columns")
	}
	glyphID, _ := asInt64(cols[0])
	emb, err := coerceBlob(cols[1])
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rid := *rowid
	if rid <= 0 {
		rid = t.nextRowID
		t.nextRowID++
	}
	for i := range t.rows {
		if t.rows[i].rowid == rid {
			t.rows[i] = vecRow{rowid: rid, glyphID: glyphID, embedding: emb}
			*rowid = rid
			return nil
		}
	}
	t.rows = append(t.rows, vecRow{rowid: rid, glyphID: glyphID, embedding: emb})
	*rowid = rid
	return nil
}

func (t *vecTable) Update(oldRowid int64, cols []vtab.Value, newRowid *int64) error {
	if len(cols) < 2 {
		return fmt.Errorf("vec_glyphs: update expects 2 columns")
	}
	glyphID, _ := asInt64(cols[0])
	emb, err := coerceBlob(cols[1])
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	target := oldRowid
	if newRowid != nil && *newRowid > 0 {
		target = *newRowid
	}
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.rows[i] = vecRow{rowid: target, glyphID: glyphID, embedding: emb}
			return nil
		}
	}
	t.rows = append(t.rows, vecRow{rowid: target, glyphID: glyphID, embedding: emb})
	if target >= t.nextRowID {
		t.nextRowID = target + 1
	}
	return nil
}

func (t *vecTable) Delete(oldRowid int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			break
		}
	}
	return nil
}

// Truncate drops all rows, used before a full rebuild from the glyphs table.
func (t *vecTable) Truncate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
	t.nextRowID = 1
}

type vecCursor struct {
	tbl *vecTable
	idx int
}

func (c *vecCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.idx = -1
	return c.Next()
}

func (c *vecCursor) Next() error { c.idx++; return nil }

func (c *vecCursor) Eof() bool {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	return c.idx >= len(c.tbl.rows)
}

func (c *vecCursor) Column(col int) (vtab.Value, error) {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return nil, fmt.Errorf("vec_glyphs: cursor out of range")
	}
	row := c.tbl.rows[c.idx]
	switch col {
	case 0:
		return row.glyphID, nil
	case 1:
		return row.embedding, nil
	default:
		return nil, fmt.Errorf("vec_glyphs: invalid column %d", col)
	}
}

func (c *vecCursor) Rowid() (int64, error) {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return 0, fmt.Errorf("vec_glyphs: cursor out of range")
	}
	return c.tbl.rows[c.idx].rowid, nil
}

func (c *vecCursor) Close() error { return nil }

func vecDistanceCos(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := decodeDriverFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeDriverFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return float64(1), nil
	}
	return 1 - cosineSimilarity(a, b), nil
}

func decodeDriverFloat32(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vector_distance_cos: blob length %d not a multiple of 4", len(x))
		}
		out := make([]float32, len(x)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(x[i*4:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("vector_distance_cos: unsupported type %T", v)
	}
}

func coerceBlob(v vtab.Value) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("vec_glyphs: unsupported embedding type %T", v)
	}
}

func asInt64(v vtab.Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	default:
		return 0, false
	}
}
