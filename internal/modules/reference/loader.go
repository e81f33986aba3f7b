package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Dump file names as published by the static data export.
const (
	invTypesFile         = "invTypes.csv"
	invTypeMaterialsFile = "invTypeMaterials.csv"
)

// invTypes.csv column offsets.
const (
	colTypeID      = 0
	colTypeName    = 2
	colVolume      = 5
	colPortionSize = 7
)

// DumpLoader downloads and parses the static data dump. Downloaded files are
// kept on disk under the data directory; an existing file is a cache hit and
// is never re-downloaded (clear the files to force a refresh).
type DumpLoader struct {
	baseURL string
	dataDir string
	client  *http.Client
	log     zerolog.Logger
}

// NewDumpLoader creates a loader for the given dump mirror and data directory.
func NewDumpLoader(baseURL, dataDir string, log zerolog.Logger) *DumpLoader {
	return &DumpLoader{
		baseURL: baseURL,
		dataDir: dataDir,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     log.With().Str("client", "sde_dump").Logger(),
	}
}

// Catalog loads the item catalog (id, name, volume, portion size).
// Any failure here is fatal to startup: the process cannot price anything
// without a universe.
func (l *DumpLoader) Catalog() ([]Item, error) {
	path, err := l.fetchFile(invTypesFile)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return parseCatalog(f)
}

// YieldTable loads the raw yield table: source item id to the materials one
// reprocessing batch produces.
func (l *DumpLoader) YieldTable() (map[int][]RawYield, error) {
	path, err := l.fetchFile(invTypeMaterialsFile)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return parseYieldTable(f)
}

// fetchFile returns the local path of a dump file, downloading it first if it
// is not already on disk.
func (l *DumpLoader) fetchFile(name string) (string, error) {
	path := filepath.Join(l.dataDir, name)

	if _, err := os.Stat(path); err == nil {
		l.log.Debug().Str("file", name).Msg("Dump file cache hit")
		return path, nil
	}

	url := l.baseURL + "/" + name
	l.log.Info().Str("url", url).Msg("Downloading dump file")

	resp, err := l.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dump download %s returned status %d", url, resp.StatusCode)
	}

	// Download to a temp file and rename so a partial download never
	// masquerades as a cached dump on the next run.
	tmp, err := os.CreateTemp(l.dataDir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	return path, nil
}

// parseCatalog reads invTypes.csv. The description column may contain quoted
// newlines, which encoding/csv handles.
func parseCatalog(r io.Reader) ([]Item, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var items []Item
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", invTypesFile, err)
		}
		if first {
			first = false // header row
			continue
		}
		if len(record) <= colPortionSize {
			return nil, fmt.Errorf("%s: row for %q has %d columns, want at least %d",
				invTypesFile, record[0], len(record), colPortionSize+1)
		}

		typeID, err := strconv.Atoi(record[colTypeID])
		if err != nil {
			return nil, fmt.Errorf("%s: bad type id %q: %w", invTypesFile, record[colTypeID], err)
		}
		volume, err := parseDumpFloat(record[colVolume], 0)
		if err != nil {
			return nil, fmt.Errorf("%s: bad volume for type %d: %w", invTypesFile, typeID, err)
		}
		portion, err := parseDumpFloat(record[colPortionSize], 1)
		if err != nil {
			return nil, fmt.Errorf("%s: bad portion size for type %d: %w", invTypesFile, typeID, err)
		}

		items = append(items, Item{
			TypeID:      typeID,
			Name:        record[colTypeName],
			Volume:      volume,
			PortionSize: portion,
		})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%s contained no items", invTypesFile)
	}

	return items, nil
}

// parseYieldTable reads invTypeMaterials.csv: typeID, materialTypeID, quantity.
func parseYieldTable(r io.Reader) (map[int][]RawYield, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3

	table := make(map[int][]RawYield)
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", invTypeMaterialsFile, err)
		}
		if first {
			first = false // header row
			continue
		}

		typeID, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("%s: bad type id %q: %w", invTypeMaterialsFile, record[0], err)
		}
		materialID, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad material id %q: %w", invTypeMaterialsFile, record[1], err)
		}
		quantity, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad quantity %q: %w", invTypeMaterialsFile, record[2], err)
		}

		table[typeID] = append(table[typeID], RawYield{MaterialID: materialID, Quantity: quantity})
	}

	return table, nil
}

// parseDumpFloat parses a numeric dump cell. The export writes missing values
// as empty strings or "None"; those fall back to def.
func parseDumpFloat(s string, def float64) (float64, error) {
	if s == "" || s == "None" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}
