package node

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"hitchload/internal/metrics"
)

// UploadOptions tunes the chunked upload to LoadHashedRecords.
type UploadOptions struct {
	// ChunkBytes is the soft size limit per uploaded chunk. Chunks split on
	// row boundaries, so a chunk may exceed the limit by one row. Zero means
	// 64 MiB.
	ChunkBytes int

	// Parallel bounds concurrent chunk uploads. Zero means 1 (sequential,
	// which preserves node-side ingest order).
	Parallel int
}

const defaultChunkBytes = 64 << 20

// maxRowBytes bounds a single CSV row during chunk scanning. Hashed rows are
// a few hundred bytes each; 1 MiB leaves generous headroom.
const maxRowBytes = 1 << 20

// rowScanner yields one logical CSV row per Scan. A quoted field may contain
// the record separator, so a physical line with an odd number of quote bytes
// continues into the next one; splitting chunks on raw newlines would tear
// such a row in half and corrupt two chunks at once. Quote parity is enough
// here because the staging file is written by encoding/csv, which escapes
// embedded quotes by doubling them.
type rowScanner struct {
	sc  *bufio.Scanner
	row []byte
}

func newRowScanner(r io.Reader) *rowScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRowBytes)
	return &rowScanner{sc: sc}
}

// Scan advances to the next logical row. It reports false at end of input or
// on error; a trailing row with an unterminated quote is returned as-is and
// left for the node to reject.
func (s *rowScanner) Scan() bool {
	s.row = s.row[:0]
	quotes := 0
	for s.sc.Scan() {
		if len(s.row) > 0 {
			s.row = append(s.row, '\n')
		}
		s.row = append(s.row, s.sc.Bytes()...)
		quotes += bytes.Count(s.sc.Bytes(), []byte(`"`))
		if quotes%2 == 0 {
			return true
		}
	}
	return len(s.row) > 0
}

func (s *rowScanner) Bytes() []byte { return s.row }

func (s *rowScanner) Err() error { return s.sc.Err() }

// LoadRecords uploads the hashed CSV from r into the database identified by
// dbUUID. Inputs larger than opt.ChunkBytes are split on row boundaries and
// each chunk re-carries the header row so the node can parse it standalone.
// It returns the number of chunks uploaded.
//
// With opt.Parallel > 1, chunks are uploaded concurrently under an errgroup;
// memory stays bounded by Parallel * ChunkBytes.
func LoadRecords(ctx context.Context, c *Client, dbUUID string, r io.Reader, opt UploadOptions) (int, error) {
	if opt.ChunkBytes <= 0 {
		opt.ChunkBytes = defaultChunkBytes
	}
	if opt.Parallel <= 0 {
		opt.Parallel = 1
	}

	sc := newRowScanner(r)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("node: read header for upload: %w", err)
		}
		return 0, fmt.Errorf("node: nothing to upload: empty file")
	}
	header := append([]byte{}, sc.Bytes()...)
	header = append(header, '\n')

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Parallel)

	chunks := 0
	buf := bytes.NewBuffer(nil)
	buf.Write(header)
	rows := 0

	flush := func() {
		if rows == 0 {
			return
		}
		index := chunks
		chunks++
		data := append([]byte{}, buf.Bytes()...)
		nrows := rows
		buf.Reset()
		buf.Write(header)
		rows = 0

		g.Go(func() error {
			sum := xxh3.Hash(data)
			log.Printf("upload: chunk=%d rows=%d size=%s xxh3=%016x",
				index, nrows, humanize.Bytes(uint64(len(data))), sum)
			if err := uploadChunk(ctx, c, dbUUID, data); err != nil {
				return fmt.Errorf("node: upload chunk %d: %w", index, err)
			}
			metrics.RecordChunks("hitchload", 1)
			return nil
		})
	}

	for sc.Scan() {
		row := sc.Bytes()
		if len(bytes.TrimSpace(row)) == 0 {
			continue
		}
		buf.Write(row)
		buf.WriteByte('\n')
		rows++
		if buf.Len() >= opt.ChunkBytes {
			flush()
		}
	}
	if err := sc.Err(); err != nil {
		// Wait for in-flight chunks before reporting so we don't leak goroutines.
		_ = g.Wait()
		return chunks, fmt.Errorf("node: scan upload buffer: %w", err)
	}
	flush()

	if err := g.Wait(); err != nil {
		return chunks, err
	}
	if chunks == 0 {
		return 0, fmt.Errorf("node: nothing to upload: no data rows")
	}
	return chunks, nil
}

// uploadChunk POSTs one CSV chunk to LoadHashedRecords as multipart/form-data.
func uploadChunk(ctx context.Context, c *Client, dbUUID string, data []byte) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename=".buf_hitch.csv"`)
	hdr.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(ctx, http.MethodPost, "LoadHashedRecords",
		map[string]string{"DBUUID": dbUUID}, body.Bytes(), headers)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Token is one personid→token pair returned by the node after a load.
type Token struct {
	PersonID string `json:"PersonId"`
	Token    string `json:"Token"`
}

// PersonTokens retrieves the tokens minted for the loaded records. An empty
// result after a successful load indicates the load did not land, so it is
// reported as an error by the caller.
func PersonTokens(ctx context.Context, c *Client, dbUUID string) ([]Token, error) {
	headers := http.Header{}
	headers.Set("Accept", "application/json")

	resp, err := c.do(ctx, http.MethodGet, "GetPersonTokens",
		map[string]string{"DBUUID": dbUUID}, nil, headers)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tokens []Token
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("node: decode GetPersonTokens: %w", err)
	}
	return tokens, nil
}
