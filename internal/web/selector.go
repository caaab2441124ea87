package web

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/google/uuid"

	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/session"
)

// Media served from the database is addressed by an opaque selector naming
// the exact cell, accompanied by a capability token: a salted hash over the
// selector whose salt lives only in the session of the user the link was
// rendered for. Possession of a matching token proves the link was handed
// out to this session, so the endpoint itself needs no further
// authorization state.

// rowSelector addresses one stored file, or a virtual table attachment for
// the bulk export modes. The tuple is bound to the acting user and client
// address at link time.
type rowSelector struct {
	Table    string `json:"t"`
	Column   string `json:"c"`
	IDColumn string `json:"i"`
	RowID    int64  `json:"r"`
	Page     string `json:"p"`
	Index    int    `json:"x"`
	User     string `json:"u"`
	Addr     string `json:"a"`
}

// draftSelector addresses an uploaded file still pending in an editor
// session. No token is needed: the file is only reachable through the
// session it lives in.
type draftSelector struct {
	Page   string `json:"p"`
	Index  int    `json:"x"`
	Column string `json:"c"`
}

// ssha is the capability hash: sha1 over salt, data and the raw binary
// sha1 of data and salt.
func ssha(data []byte, salt string) string {
	inner := sha1.Sum(append(append([]byte{}, data...), salt...))
	outer := sha1.New()
	outer.Write([]byte(salt))
	outer.Write(data)
	outer.Write(inner[:])
	return hex.EncodeToString(outer.Sum(nil))
}

func (sel rowSelector) serialize() []byte {
	raw, _ := json.Marshal(sel)
	return raw
}

// digest keys the per-session salt pool.
func (sel rowSelector) digest() string {
	sum := sha1.Sum(sel.serialize())
	return hex.EncodeToString(sum[:])
}

func (sel rowSelector) encode() string {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(sel.serialize())
	zw.Close()
	return base64.URLEncoding.EncodeToString(buf.Bytes())
}

func decodeRowSelector(in string) (rowSelector, error) {
	var sel rowSelector
	packed, err := base64.URLEncoding.DecodeString(in)
	if err != nil {
		return sel, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(packed))
	if err != nil {
		return sel, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(io.LimitReader(zr, 4096))
	if err != nil {
		return sel, err
	}
	return sel, json.Unmarshal(raw, &sel)
}

func (sel draftSelector) encode() string {
	raw, _ := json.Marshal(sel)
	return base64.URLEncoding.EncodeToString(raw)
}

func decodeDraftSelector(in string) (draftSelector, error) {
	var sel draftSelector
	raw, err := base64.URLEncoding.DecodeString(in)
	if err != nil {
		return sel, err
	}
	return sel, json.Unmarshal(raw, &sel)
}

// linker mints media and export URLs for the blocks of one request,
// registering the backing salts in the block's session state.
type linker struct {
	store    session.Store
	ident    engine.Identity
	page     string
	revision string
}

// token returns the capability token of sel, creating the salt on first
// use within the session.
func (l *linker) token(sel rowSelector) string {
	state := l.store.View(l.ident.SessionID, l.page, l.revision, sel.Index)
	if state.MediaSalts == nil {
		state.MediaSalts = map[string]string{}
	}

	key := sel.digest()
	salt := state.MediaSalts[key]
	if salt == "" {
		salt = uuid.NewString()
		state.MediaSalts[key] = salt
	}
	return ssha(sel.serialize(), salt)
}

// media returns the retrieval URL of one stored file cell.
func (l *linker) media(index int, table, column, idColumn string, rowID int64) string {
	sel := rowSelector{
		Table:    table,
		Column:   column,
		IDColumn: idColumn,
		RowID:    rowID,
		Page:     l.page,
		Index:    index,
		User:     l.ident.Name,
		Addr:     l.ident.RemoteAddr,
	}
	return fmt.Sprintf("/media?a=%s&b=%s",
		url.QueryEscape(sel.encode()), url.QueryEscape(l.token(sel)))
}

// export returns the URL of a bulk export surface of one table. The
// selector addresses the table as a virtual attachment.
func (l *linker) export(index int, kind, table string) string {
	sel := rowSelector{
		Table:    table,
		Column:   "fake",
		IDColumn: "id",
		RowID:    1,
		Page:     l.page,
		Index:    index,
		User:     l.ident.Name,
		Addr:     l.ident.RemoteAddr,
	}
	return fmt.Sprintf("/media?a=%s&b=%s&m=%s&d=1",
		url.QueryEscape(sel.encode()), url.QueryEscape(l.token(sel)), url.QueryEscape(kind))
}

// draft returns the retrieval URL of an in-flight editor upload.
func (l *linker) draft(index int, column string) string {
	sel := draftSelector{Page: l.page, Index: index, Column: column}
	return "/media?s=" + url.QueryEscape(sel.encode())
}
