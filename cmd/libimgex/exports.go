package main

/*
#include <stdlib.h>

#include "imgex.h"
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/jmgilman/go/imgex"
)

// An exported Go function runs on the thread of its C caller, so the
// thread-local last error belongs to that caller.

func setLastError(err error) {
	if err == nil {
		C.imgex_set_last_error(nil)
		return
	}
	C.imgex_set_last_error(C.CString(err.Error()))
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

//export get_image_config_json
func get_image_config_json(imageRef, authJSON *C.char) *C.char {
	config, err := configJSON(context.Background(), goString(imageRef), goString(authJSON))
	setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(string(config))
}

//export export_image_filesystem_to_file
func export_image_filesystem_to_file(imageRef, outputPath, authJSON *C.char) C.int {
	_, err := exportFile(context.Background(), goString(imageRef), goString(outputPath), goString(authJSON),
		imgex.ExportOptions{})
	setLastError(err)
	if err != nil {
		return -1
	}
	return 0
}

//export export_image_filesystem_with_options
func export_image_filesystem_with_options(
	imageRef, outputPath, authJSON *C.char,
	compress C.int,
	callback C.progress_callback_t,
) C.int {
	opts := imgex.ExportOptions{Compress: compress != 0}
	if callback != nil {
		opts.Reporter = imgex.ReporterFunc(func(e imgex.Event) {
			desc := C.CString(e.Description)
			defer C.free(unsafe.Pointer(desc))
			C.imgex_report(callback, C.int(e.Current), C.int(e.Total), desc)
		})
	}

	_, err := exportFile(context.Background(), goString(imageRef), goString(outputPath), goString(authJSON), opts)
	setLastError(err)
	if err != nil {
		return -1
	}
	return 0
}

//export get_version
func get_version() *C.char {
	return C.CString(imgex.Version)
}

//export get_description
func get_description() *C.char {
	return C.CString(imgex.Description)
}

//export get_last_error
func get_last_error() *C.char {
	return C.imgex_copy_last_error()
}

//export free_string
func free_string(s *C.char) {
	C.free(unsafe.Pointer(s))
}
