// Copyright 2021 - 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
)

const (
	// 0 - 99 is OK.  They do not contain info, and are special handled
	// using a static instance, no alloc.
	Ok    uint16 = 0
	OkMax uint16 = 99

	// Group 1: Internal errors
	ErrStart    uint16 = 20100
	ErrInternal uint16 = 20101

	// Group 2: arguments
	ErrInvalidArg uint16 = 20203

	// Group 3: invalid input
	ErrBadConfig uint16 = 20300

	// Group 4: unexpected state
	ErrInvalidState  uint16 = 20400
	ErrUnexpectedEOF uint16 = 20407

	// Group 5: slab allocation
	// ErrBufferTooSmall the backing buffer cannot hold the next section
	ErrBufferTooSmall uint16 = 20500
	// ErrNoFit no section is large enough and has a free slot
	ErrNoFit uint16 = 20501
	// ErrSectionFull every slot of a section is claimed
	ErrSectionFull uint16 = 20502
	// ErrInvalidSlot releasing a slot that is not claimed
	ErrInvalidSlot uint16 = 20503
	// ErrForeignAddress the address was not issued by this allocator
	ErrForeignAddress uint16 = 20504
	// ErrDoubleFree deallocating an address whose slot is already free
	ErrDoubleFree uint16 = 20505
	// ErrAllocatorReleased the allocator no longer borrows its buffer
	ErrAllocatorReleased uint16 = 20506

	// ErrEnd, the max value of MOErrorCode
	ErrEnd uint16 = 65535
)

type moErrorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]moErrorMsgItem{
	// Group 1: Internal errors
	ErrStart:    {"internal error: error code start"},
	ErrInternal: {"internal error: %s"},

	// Group 2: arguments
	ErrInvalidArg: {"invalid argument %s, bad value %v"},

	// Group 3: invalid input
	ErrBadConfig: {"invalid configuration: %s"},

	// Group 4: unexpected state
	ErrInvalidState:  {"invalid state %s"},
	ErrUnexpectedEOF: {"unexpected end of file %s"},

	// Group 5: slab allocation
	ErrBufferTooSmall:    {"buffer too small: section %d needs %d bytes, %d remaining"},
	ErrNoFit:             {"no section fits %d bytes (align %d)"},
	ErrSectionFull:       {"section full: all %d slots of %d bytes are claimed"},
	ErrInvalidSlot:       {"invalid slot %d: not claimed"},
	ErrForeignAddress:    {"address %#x is not owned by the allocator"},
	ErrDoubleFree:        {"double free of slot %d in section %d"},
	ErrAllocatorReleased: {"allocator released its buffer"},

	// Group End: max value of MOErrorCode
	ErrEnd: {"internal error: end of errcode code"},
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	var err *Error
	item, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist MOErrorCode: %d", code))
	}
	if len(args) == 0 {
		err = &Error{
			code:    code,
			message: item.errorMsgOrFormat,
		}
	} else {
		err = &Error{
			code:    code,
			message: fmt.Sprintf(item.errorMsgOrFormat, args...),
		}
	}
	return err
}

type Error struct {
	code    uint16
	message string
	detail  string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Detail() string {
	return e.detail
}

// WithDetail attaches extra context that Display shows but Error does not.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.detail = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Display() string {
	if len(e.detail) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.detail)
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func (e *Error) Succeeded() bool {
	return e.code < OkMax
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}

	me, ok := e.(*Error)
	if !ok {
		// This is not a moerr
		return false
	}
	return me.code == rc
}

func DowncastError(e error) *Error {
	if err, ok := e.(*Error); ok {
		return err
	}
	return newError(Context(), ErrInternal, fmt.Sprintf("downcast error failed: %v", e))
}

// ConvertPanicError converts a runtime panic to internal error.
func ConvertPanicError(ctx context.Context, v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ctx, ErrInternal, fmt.Sprintf("panic %v: %s", v, debug.Stack()))
}

// ConvertGoError converts a go error into mo error.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	// nil is nil
	if err == nil {
		return err
	}

	// already a moerr, return it as is
	if _, ok := err.(*Error); ok {
		return err
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// if io.EOF reaches here, we believe it is not expected.
		return NewUnexpectedEOF(ctx, err.Error())
	}

	return NewInternalError(ctx, "convert go error to mo error %v", err)
}

var errOk = Error{Ok, "Succeeded", ""}

func GetOk() *Error {
	return &errOk
}

// Context returns the context used by NoCtx constructors.
func Context() context.Context {
	return context.Background()
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, arg, val)
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewUnexpectedEOF(ctx context.Context, f string) *Error {
	return newError(ctx, ErrUnexpectedEOF, f)
}

func NewBufferTooSmall(ctx context.Context, section, need, remaining int) *Error {
	return newError(ctx, ErrBufferTooSmall, section, need, remaining)
}

func NewNoFit(ctx context.Context, size, align int) *Error {
	return newError(ctx, ErrNoFit, size, align)
}

func NewSectionFull(ctx context.Context, slots, slotSize int) *Error {
	return newError(ctx, ErrSectionFull, slots, slotSize)
}

func NewInvalidSlot(ctx context.Context, slot int) *Error {
	return newError(ctx, ErrInvalidSlot, slot)
}

func NewForeignAddress(ctx context.Context, addr uintptr) *Error {
	return newError(ctx, ErrForeignAddress, addr)
}

func NewDoubleFree(ctx context.Context, slot, section int) *Error {
	return newError(ctx, ErrDoubleFree, slot, section)
}

func NewAllocatorReleased(ctx context.Context) *Error {
	return newError(ctx, ErrAllocatorReleased)
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(Context(), msg, args...)
}

func NewInvalidArgNoCtx(arg string, val any) *Error {
	return NewInvalidArg(Context(), arg, val)
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(Context(), msg, args...)
}

func NewBadConfigNoCtx(msg string, args ...any) *Error {
	return NewBadConfig(Context(), msg, args...)
}

func NewSectionFullNoCtx(slots, slotSize int) *Error {
	return NewSectionFull(Context(), slots, slotSize)
}

func NewInvalidSlotNoCtx(slot int) *Error {
	return NewInvalidSlot(Context(), slot)
}

func NewBufferTooSmallNoCtx(section, need, remaining int) *Error {
	return NewBufferTooSmall(Context(), section, need, remaining)
}

func NewNoFitNoCtx(size, align int) *Error {
	return NewNoFit(Context(), size, align)
}

func NewForeignAddressNoCtx(addr uintptr) *Error {
	return NewForeignAddress(Context(), addr)
}

func NewDoubleFreeNoCtx(slot, section int) *Error {
	return NewDoubleFree(Context(), slot, section)
}

func NewAllocatorReleasedNoCtx() *Error {
	return NewAllocatorReleased(Context())
}
