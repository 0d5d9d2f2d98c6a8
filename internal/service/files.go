package service

import (
	"context"
	"strings"

	"gigmarket/internal/apperr"
	"gigmarket/internal/blob"
	"gigmarket/internal/reconcile"
)

// fileRef указывает на поле file элемента запроса; после загрузки туда пишется ключ объекта
type fileRef struct {
	content *string
	name    string
}

func fileRefs(items []reconcile.Item[FileFields]) []fileRef {
	refs := make([]fileRef, 0, len(items))
	for _, it := range items {
		ref := fileRef{content: it.Fields.File}
		if it.Fields.Name != nil {
			ref.name = *it.Fields.Name
		}
		refs = append(refs, ref)
	}
	return refs
}

func invoiceRefs(items []reconcile.Item[InvoiceFields]) []fileRef {
	refs := make([]fileRef, 0, len(items))
	for _, it := range items {
		refs = append(refs, fileRef{content: it.Fields.File})
	}
	return refs
}

// uploads - объекты, созданные в хранилище в рамках одного запроса
type uploads struct {
	s    *Service
	keys []string
}

// upload сохраняет новое содержимое до начала транзакции
func (s *Service) upload(ctx context.Context, folder string, refs []fileRef) (*uploads, error) {
	up := &uploads{s: s}
	for _, ref := range refs {
		if ref.content == nil || !blob.IsDataURI(*ref.content) {
			continue
		}
		if s.blobs == nil {
			up.discard(ctx)
			return nil, apperr.Validation("File uploads are not available")
		}
		contentType, data, err := blob.DecodeDataURI(*ref.content)
		if err != nil {
			up.discard(ctx)
			return nil, apperr.Invalid(map[string]string{"file": err.Error()})
		}
		key := blob.ObjectKey(folder, ref.name, contentType, data)
		exists, err := s.blobs.Exists(ctx, key)
		if err != nil {
			up.discard(ctx)
			return nil, apperr.Internal("failed to check file", err)
		}
		if !exists {
			if err := s.blobs.Put(ctx, key, contentType, data); err != nil {
				up.discard(ctx)
				return nil, apperr.Internal("failed to store file", err)
			}
			up.keys = append(up.keys, key)
		}
		*ref.content = key
	}
	return up, nil
}

// discard удаляет загруженные объекты после неудачной транзакции
func (u *uploads) discard(ctx context.Context) {
	if u == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range u.keys {
		if err := u.s.blobs.Remove(ctx, key); err != nil {
			u.s.logger.Printf("failed to remove orphaned object %s: %v", key, err)
		}
	}
	u.keys = nil
}

// merge объединяет загрузки нескольких папок
func (u *uploads) merge(other *uploads) *uploads {
	if other != nil {
		u.keys = append(u.keys, other.keys...)
	}
	return u
}

func validateFileItems(field string, items []reconcile.Item[FileFields], errs map[string]string) {
	for _, it := range items {
		if it.ID == nil && !it.IsDelete && (it.Fields.File == nil || strings.TrimSpace(*it.Fields.File) == "") {
			errs[field] = "Each new file requires content."
			return
		}
	}
}

func invalid(errs map[string]string) error {
	if len(errs) == 0 {
		return nil
	}
	return apperr.Invalid(errs)
}
