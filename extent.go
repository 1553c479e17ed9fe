package dblk

// ObjectExtent maps one contiguous piece of a request onto a backing
// object. Requests are striped across objects, so a single logical
// request fans out into one sub-operation per extent.
type ObjectExtent struct {
	Object uint64 // backing object number
	Offset int64  // byte offset within the object
	Length int64  // byte length
	BufOff int64  // offset of this piece within the request buffer
}

// objectExtents splits the byte range [off, off+length) into per-object
// extents of at most objectSize bytes. A zero-length range yields no
// extents.
func objectExtents(off, length, objectSize int64) []ObjectExtent {
	var extents []ObjectExtent
	var bufOff int64
	for length > 0 {
		objOff := off % objectSize
		n := objectSize - objOff
		if n > length {
			n = length
		}
		extents = append(extents, ObjectExtent{
			Object: uint64(off / objectSize),
			Offset: objOff,
			Length: n,
			BufOff: bufOff,
		})
		off += n
		bufOff += n
		length -= n
	}
	return extents
}
