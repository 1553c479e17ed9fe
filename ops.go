package dblk

import "golang.org/x/sys/unix"

// readPiece is one sub-operation's staging buffer and its position in
// the caller's buffer
type readPiece struct {
	bufOff int64
	data   []byte
}

// readResult scatters staged read payloads back into the caller's
// buffer. assemble runs on the finalizing goroutine, after every
// sub-operation has reported and only if none failed, so the pieces are
// quiescent by the time they are copied.
type readResult struct {
	dest   []byte
	pieces []readPiece
}

func (rr *readResult) assemble() {
	for _, p := range rr.pieces {
		copy(rr.dest[p.bufOff:], p.data)
	}
}

// AioRead issues an asynchronous read of len(buf) bytes at off. buf must
// not be touched until comp settles; it is filled only when every
// sub-operation succeeded.
func (img *ImageContext) AioRead(buf []byte, off int64, comp *Completion) {
	comp.Bind(img, OpRead)
	if r := img.validExtent(off, int64(len(buf))); r < 0 {
		comp.Fail(r)
		return
	}
	comp.StartOp()

	extents := objectExtents(off, int64(len(buf)), img.objectSize)
	rr := &readResult{dest: buf, pieces: make([]readPiece, len(extents))}
	subs := make([]*SubOp, len(extents))
	for i, ext := range extents {
		staging := make([]byte, ext.Length)
		rr.pieces[i] = readPiece{bufOff: ext.BufOff, data: staging}
		subs[i] = &SubOp{
			Op:     OpRead,
			Object: ext.Object,
			Offset: ext.Offset,
			Length: ext.Length,
			Data:   staging,
		}
	}
	comp.assemble = rr.assemble

	img.logger.Debug("read issued", "offset", off, "length", len(buf), "subops", len(subs))
	comp.SetRequestCount(uint32(len(subs)))
	for _, sub := range subs {
		img.transport.Dispatch(sub, comp)
	}
}

// AioWrite issues an asynchronous write of buf at off. buf must remain
// stable until comp settles.
func (img *ImageContext) AioWrite(buf []byte, off int64, comp *Completion) {
	comp.Bind(img, OpWrite)
	if r := img.validExtent(off, int64(len(buf))); r < 0 {
		comp.Fail(r)
		return
	}
	comp.StartOp()

	extents := objectExtents(off, int64(len(buf)), img.objectSize)
	subs := make([]*SubOp, len(extents))
	for i, ext := range extents {
		subs[i] = &SubOp{
			Op:     OpWrite,
			Object: ext.Object,
			Offset: ext.Offset,
			Length: ext.Length,
			Data:   buf[ext.BufOff : ext.BufOff+ext.Length],
		}
	}

	img.logger.Debug("write issued", "offset", off, "length", len(buf), "subops", len(subs))
	comp.SetRequestCount(uint32(len(subs)))
	for _, sub := range subs {
		img.transport.Dispatch(sub, comp)
	}
}

// AioDiscard releases the byte range [off, off+length); discarded bytes
// read back as zeros
func (img *ImageContext) AioDiscard(off, length int64, comp *Completion) {
	comp.Bind(img, OpDiscard)
	if r := img.validExtent(off, length); r < 0 {
		comp.Fail(r)
		return
	}
	comp.StartOp()

	extents := objectExtents(off, length, img.objectSize)
	subs := make([]*SubOp, len(extents))
	for i, ext := range extents {
		subs[i] = &SubOp{
			Op:     OpDiscard,
			Object: ext.Object,
			Offset: ext.Offset,
			Length: ext.Length,
		}
	}

	img.logger.Debug("discard issued", "offset", off, "length", length, "subops", len(subs))
	comp.SetRequestCount(uint32(len(subs)))
	for _, sub := range subs {
		img.transport.Dispatch(sub, comp)
	}
}

// AioFlush asks the backend to commit all previously completed writes to
// stable storage
func (img *ImageContext) AioFlush(comp *Completion) {
	comp.Bind(img, OpFlush)
	if img.destroyed.Load() {
		comp.Fail(ErrnoResult(unix.ESHUTDOWN))
		return
	}
	comp.StartOp()

	img.logger.Debug("flush issued")
	comp.SetRequestCount(1)
	img.transport.Dispatch(&SubOp{Op: OpFlush}, comp)
}

// AioWriteSame fills [off, off+length) with repetitions of pattern.
// length must be a whole multiple of len(pattern).
func (img *ImageContext) AioWriteSame(off, length int64, pattern []byte, comp *Completion) {
	comp.Bind(img, OpWriteSame)
	if len(pattern) == 0 || length%int64(len(pattern)) != 0 {
		comp.Fail(ErrnoResult(unix.EINVAL))
		return
	}
	if r := img.validExtent(off, length); r < 0 {
		comp.Fail(r)
		return
	}
	comp.StartOp()

	extents := objectExtents(off, length, img.objectSize)
	subs := make([]*SubOp, len(extents))
	for i, ext := range extents {
		subs[i] = &SubOp{
			Op:         OpWriteSame,
			Object:     ext.Object,
			Offset:     ext.Offset,
			Length:     ext.Length,
			Pattern:    pattern,
			PatternOff: ext.BufOff % int64(len(pattern)),
		}
	}

	img.logger.Debug("writesame issued", "offset", off, "length", length, "subops", len(subs))
	comp.SetRequestCount(uint32(len(subs)))
	for _, sub := range subs {
		img.transport.Dispatch(sub, comp)
	}
}

// AioCompareAndWrite atomically compares the bytes at off with cmp and,
// on a match, writes buf. cmp and buf must be the same length. A
// mismatch settles the request with -EILSEQ; per-object atomicity is the
// backend's responsibility.
func (img *ImageContext) AioCompareAndWrite(off int64, cmp, buf []byte, comp *Completion) {
	comp.Bind(img, OpCompareAndWrite)
	if len(cmp) != len(buf) {
		comp.Fail(ErrnoResult(unix.EINVAL))
		return
	}
	if r := img.validExtent(off, int64(len(buf))); r < 0 {
		comp.Fail(r)
		return
	}
	comp.StartOp()

	extents := objectExtents(off, int64(len(buf)), img.objectSize)
	subs := make([]*SubOp, len(extents))
	for i, ext := range extents {
		subs[i] = &SubOp{
			Op:      OpCompareAndWrite,
			Object:  ext.Object,
			Offset:  ext.Offset,
			Length:  ext.Length,
			Data:    buf[ext.BufOff : ext.BufOff+ext.Length],
			Compare: cmp[ext.BufOff : ext.BufOff+ext.Length],
		}
	}

	img.logger.Debug("compare-and-write issued", "offset", off, "length", len(buf), "subops", len(subs))
	comp.SetRequestCount(uint32(len(subs)))
	for _, sub := range subs {
		img.transport.Dispatch(sub, comp)
	}
}
