// Package chunk splits oversized notification payloads into a bounded
// sequence of messages that each fit a sink's size limit.
package chunk

import (
	"fmt"
	"strings"
)

// MaxChunks bounds the number of messages one payload may produce.
// Content past the cutoff is dropped; a thousand-part notification
// helps nobody.
const MaxChunks = 10

// suffixReserve is the widest position label a chunk name can carry,
// len(" (10/10):"). Using the worst case for every chunk keeps the
// per-chunk capacity independent of the final part count.
const suffixReserve = len(" (10/10):")

// Field is one labeled section of a payload.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Split partitions a payload into chunks of at most maxSize bytes
// (names plus values). A payload that fits is returned as a single
// chunk with the sink's colon convention applied to the first name.
//
// Oversized payloads are cut greedily. With one field, each chunk
// holds maxSize minus the label overhead. With two fields, the chunk
// budget is shared: each field takes at most half until its sibling is
// exhausted, after which it may take the rest. Concatenating a field's
// values across all chunks reproduces a prefix of the original value.
//
// Only the first two fields participate in splitting; any further
// fields ride along on the first chunk unchanged.
func Split(fields []Field, maxSize int) [][]Field {
	if len(fields) == 0 {
		return nil
	}

	if singleSize(fields) <= maxSize {
		out := make([]Field, len(fields))
		copy(out, fields)
		out[0].Name += ":"
		return [][]Field{out}
	}

	var chunks [][]Field
	if len(fields) == 1 {
		chunks = splitSingle(fields[0], maxSize)
	} else {
		chunks = splitPair(fields[0], fields[1], maxSize)
	}

	if len(fields) > 2 && len(chunks) > 0 {
		chunks[0] = append(chunks[0], fields[2:]...)
	}
	return chunks
}

// singleSize is the rendered size of an unsplit payload, one byte for
// the colon on the first name.
func singleSize(fields []Field) int {
	size := 1
	for _, f := range fields {
		size += len(f.Name) + len(f.Value)
	}
	return size
}

func splitSingle(f Field, maxSize int) [][]Field {
	capacity := maxSize - len(f.Name) - suffixReserve
	if capacity < 1 {
		capacity = 1
	}

	total := (len(f.Value) + capacity - 1) / capacity
	if total > MaxChunks {
		total = MaxChunks
	}

	var chunks [][]Field
	value := f.Value
	for i := 1; i <= total; i++ {
		cut := capacity
		if cut > len(value) {
			cut = len(value)
		}
		chunks = append(chunks, []Field{{
			Name:   partName(f.Name, i, total),
			Value:  value[:cut],
			Inline: f.Inline,
		}})
		value = value[cut:]
	}
	return chunks
}

// splitPair cuts two fields against a shared per-chunk budget. The dry
// run and the emitting run walk the identical schedule so the (i/total)
// labels are accurate.
func splitPair(a, b Field, maxSize int) [][]Field {
	budget := maxSize - len(a.Name) - len(b.Name) - suffixReserve
	if budget < 2 {
		budget = 2
	}

	total := pairSchedule(len(a.Value), len(b.Value), budget, nil)
	if total > MaxChunks {
		total = MaxChunks
	}

	var chunks [][]Field
	emit := func(i, takeA, takeB int) {
		var chunk []Field
		if takeA > 0 {
			chunk = append(chunk, Field{
				Name:   partName(a.Name, i, total),
				Value:  a.Value[:takeA],
				Inline: a.Inline,
			})
			a.Value = a.Value[takeA:]
		}
		if takeB > 0 {
			chunk = append(chunk, Field{Name: b.Name, Value: b.Value[:takeB], Inline: b.Inline})
			b.Value = b.Value[takeB:]
		}
		chunks = append(chunks, chunk)
	}
	pairSchedule(len(a.Value), len(b.Value), budget, emit)
	return chunks
}

// pairSchedule computes the per-chunk takes for a two-field payload and
// returns the chunk count. When emit is non-nil it is called once per
// chunk; the count run and the emit run are the same loop.
func pairSchedule(remA, remB, budget int, emit func(i, takeA, takeB int)) int {
	count := 0
	for (remA > 0 || remB > 0) && count < MaxChunks {
		count++

		capA := budget / 2
		if remB == 0 {
			capA = budget
		}
		takeA := remA
		if takeA > capA {
			takeA = capA
		}

		capB := budget / 2
		if remA-takeA == 0 {
			capB = budget - takeA
		}
		takeB := remB
		if takeB > capB {
			takeB = capB
		}

		if emit != nil {
			emit(count, takeA, takeB)
		}
		remA -= takeA
		remB -= takeB
	}
	return count
}

func partName(name string, i, total int) string {
	return fmt.Sprintf("%s (%d/%d):", name, i, total)
}

// Render flattens one chunk into plain text, for sinks without native
// field formatting.
func Render(chunk []Field) string {
	var sb strings.Builder
	for i, f := range chunk {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(f.Name)
		if !strings.HasSuffix(f.Name, ":") {
			sb.WriteString(":")
		}
		sb.WriteString(" ")
		sb.WriteString(f.Value)
	}
	return sb.String()
}
