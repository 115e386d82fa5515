package shm

/*
#cgo CFLAGS: -I../../../capture
#cgo LDFLAGS: -lrt -lpthread

#include <stdlib.h>
#include <stdint.h>
#include <time.h>
#include <sys/mman.h>
#include <fcntl.h>
#include <unistd.h>
#include <string.h>
#include <semaphore.h>
#include <errno.h>

// Ensure EINVAL is defined
#ifndef EINVAL
#define EINVAL 22
#endif

// Constants from shared_memory.h
#define SHM_NAME_STREAM "/pet_camera_stream"
#define RING_BUFFER_SIZE 30
#define MAX_FRAME_SIZE (1920 * 1080 * 3 / 2)

// Frame structure matching shared_memory.h
typedef struct {
    uint64_t frame_number;
    struct timespec timestamp;
    int camera_id;
    int width;
    int height;
    int format;
    size_t data_size;
    // Brightness metrics (Phase 0: ISP low-light enhancement)
    float brightness_avg;       // Y-plane average brightness (0-255)
    uint32_t brightness_lux;    // Environment illuminance from ISP cur_lux
    uint8_t brightness_zone;    // 0=dark, 1=dim, 2=normal, 3=bright
    uint8_t correction_applied; // 1 if ISP low-light correction is active
    uint8_t _reserved[2];       // Padding for alignment
    uint8_t data[MAX_FRAME_SIZE];
} Frame;

// SharedFrameBuffer structure matching shared_memory.h
typedef struct {
    volatile uint32_t write_index;
    volatile uint32_t frame_interval_ms;
    uint8_t new_frame_sem[32];  // sem_t semaphore (32 bytes on Linux)
    Frame frames[RING_BUFFER_SIZE];
} SharedFrameBuffer;

// Open shared memory for reading (RDWR needed for sem_wait)
SharedFrameBuffer* open_shm(const char* name) {
    int fd = shm_open(name, O_RDWR, 0666);
    if (fd == -1) {
        return NULL;
    }

    SharedFrameBuffer* shm = (SharedFrameBuffer*)mmap(
        NULL,
        sizeof(SharedFrameBuffer),
        PROT_READ | PROT_WRITE,  // WRITE needed for sem_wait
        MAP_SHARED,
        fd,
        0
    );

    close(fd);

    if (shm == MAP_FAILED) {
        return NULL;
    }

    return shm;
}

// Wait for new frame notification with timeout
// Returns: 0 on success, -1 on timeout, negative errno on error
int wait_new_frame(SharedFrameBuffer* shm, int timeout_ms) {
    if (shm == NULL) {
        return -EINVAL;
    }

    if (timeout_ms <= 0) {
        // No timeout, block indefinitely
        if (sem_wait((sem_t*)&shm->new_frame_sem) != 0) {
            return -errno;  // Return negative errno
        }
        return 0;
    }

    // With timeout
    struct timespec ts;
    if (clock_gettime(CLOCK_REALTIME, &ts) != 0) {
        return -errno;
    }

    // Add timeout
    ts.tv_sec += timeout_ms / 1000;
    ts.tv_nsec += (timeout_ms % 1000) * 1000000;
    if (ts.tv_nsec >= 1000000000) {
        ts.tv_sec += 1;
        ts.tv_nsec -= 1000000000;
    }

    int ret = sem_timedwait((sem_t*)&shm->new_frame_sem, &ts);
    if (ret == -1) {
        return -errno;  // Return negative errno (including ETIMEDOUT)
    }

    return 0;
}

// Close shared memory
void close_shm(SharedFrameBuffer* shm) {
    if (shm != NULL) {
        munmap((void*)shm, sizeof(SharedFrameBuffer));
    }
}

// Get current write index (volatile read - no atomic needed for 32-bit on x86/ARM64)
uint32_t get_write_index(SharedFrameBuffer* shm) {
    return shm->write_index;
}

// Read frame at specific index
int read_frame(SharedFrameBuffer* shm, uint32_t index, Frame* out) {
    if (index >= RING_BUFFER_SIZE) {
        return -1;
    }

    // Copy frame data (memcpy is safe for reading from shared memory)
    memcpy(out, &shm->frames[index], sizeof(Frame));
    return 0;
}

#define MAX_DETECTIONS 10

typedef struct {
    int x;
    int y;
    int w;
    int h;
} BoundingBox;

typedef struct {
    char class_name[32];
    float confidence;
    BoundingBox bbox;
} Detection;

typedef struct {
    uint64_t frame_number;
    struct timespec timestamp;
    int num_detections;
    Detection detections[MAX_DETECTIONS];
    volatile uint32_t version;
} LatestDetectionResult;

LatestDetectionResult* open_detection_shm(const char* name) {
    int fd = shm_open(name, O_RDONLY, 0666);
    if (fd == -1) {
        return NULL;
    }

    LatestDetectionResult* shm = (LatestDetectionResult*)mmap(
        NULL,
        sizeof(LatestDetectionResult),
        PROT_READ,
        MAP_SHARED,
        fd,
        0
    );

    close(fd);

    if (shm == MAP_FAILED) {
        return NULL;
    }

    return shm;
}

void close_detection_shm(LatestDetectionResult* shm) {
    if (shm != NULL) {
        munmap((void*)shm, sizeof(LatestDetectionResult));
    }
}

int read_detection_snapshot(LatestDetectionResult* shm, LatestDetectionResult* out) {
    if (!shm || !out) {
        return -1;
    }
    memcpy(out, shm, sizeof(LatestDetectionResult));
    return 0;
}
*/
import "C"
import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
)

const (
	// Format constants matching shared_memory.h
	FormatJPEG = 0
	FormatNV12 = 1
	FormatRGB  = 2
	FormatH264 = 3

	// Buffer constants
	RingBufferSize = 30
	MaxFrameSize   = 1920 * 1080 * 3 / 2

	DefaultFrameName     = "/pet_camera_stream"
	DefaultDetectionName = "/pet_camera_detections"
)

// ErrTimeout is returned by WaitNewFrame when no frame arrives in time.
var ErrTimeout = errors.New("shm: timeout waiting for frame")

// Reader reads frames and detections from the camera daemon's shared memory
type Reader struct {
	shm          *C.SharedFrameBuffer
	detectionShm *C.LatestDetectionResult
	shmName      string
}

// Open maps the frame ring and, if detectionName is set, the detection segment.
func Open(frameName, detectionName string) (*Reader, error) {
	if frameName == "" {
		frameName = DefaultFrameName
	}

	cName := C.CString(frameName)
	shm := C.open_shm(cName)
	C.free(unsafe.Pointer(cName))
	if shm == nil {
		return nil, fmt.Errorf("failed to open shared memory: %s", frameName)
	}

	r := &Reader{shm: shm, shmName: frameName}
	if detectionName != "" {
		cDet := C.CString(detectionName)
		r.detectionShm = C.open_detection_shm(cDet)
		C.free(unsafe.Pointer(cDet))
		if r.detectionShm == nil {
			r.Close()
			return nil, fmt.Errorf("failed to open shared memory: %s", detectionName)
		}
	}

	logger.Info("Reader", "Successfully opened shared memory: %s", frameName)
	return r, nil
}

// OpenWait retries Open once per second until it succeeds or ctx ends.
func OpenWait(ctx context.Context, frameName, detectionName string) (*Reader, error) {
	for attempt := 1; ; attempt++ {
		r, err := Open(frameName, detectionName)
		if err == nil {
			return r, nil
		}
		// Log waiting status (only every 5 seconds to reduce noise)
		if attempt%5 == 1 {
			logger.Info("Reader", "Waiting for shared memory to appear... (attempt %d): %v", attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open shared memory: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
}

// Close unmaps both segments
func (r *Reader) Close() error {
	if r.shm != nil {
		C.close_shm(r.shm)
		r.shm = nil
	}
	if r.detectionShm != nil {
		C.close_detection_shm(r.detectionShm)
		r.detectionShm = nil
	}
	return nil
}

// LatestFrame copies the newest frame out of the ring.
func (r *Reader) LatestFrame() (*FrameSnapshot, bool) {
	if r.shm == nil {
		return nil, false
	}

	writeIndex := uint32(C.get_write_index(r.shm))
	if writeIndex == 0 {
		return nil, false // No frames written yet
	}
	index := (writeIndex - 1) % RingBufferSize

	var cFrame C.Frame
	if C.read_frame(r.shm, C.uint32_t(index), &cFrame) != 0 {
		return nil, false
	}

	dataSize := int(cFrame.data_size)
	if dataSize <= 0 || dataSize > MaxFrameSize {
		return nil, false
	}

	// Copy frame data from C array to Go slice
	data := make([]byte, dataSize)
	cData := (*[MaxFrameSize]byte)(unsafe.Pointer(&cFrame.data[0]))[:dataSize:dataSize]
	copy(data, cData)

	return &FrameSnapshot{
		FrameNumber: uint64(cFrame.frame_number),
		Timestamp:   time.Unix(int64(cFrame.timestamp.tv_sec), int64(cFrame.timestamp.tv_nsec)),
		Width:       int(cFrame.width),
		Height:      int(cFrame.height),
		Format:      int(cFrame.format),
		Data:        data,
	}, true
}

// LatestDetections copies the detection segment. ok is false when the segment
// is not mapped or nothing has been written.
func (r *Reader) LatestDetections() (*DetectionSnapshot, bool) {
	if r.detectionShm == nil {
		return nil, false
	}

	var snapshot C.LatestDetectionResult
	if C.read_detection_snapshot(r.detectionShm, &snapshot) != 0 {
		return nil, false
	}
	version := uint32(snapshot.version)
	if version == 0 {
		return nil, false
	}

	out := &DetectionSnapshot{
		FrameNumber: uint64(snapshot.frame_number),
		Timestamp:   time.Unix(int64(snapshot.timestamp.tv_sec), int64(snapshot.timestamp.tv_nsec)),
		Version:     version,
	}
	n := int(snapshot.num_detections)
	for i := 0; i < n && i < int(C.MAX_DETECTIONS); i++ {
		det := snapshot.detections[i]
		classBytes := C.GoBytes(unsafe.Pointer(&det.class_name[0]), 32)
		out.Detections = append(out.Detections, RawDetection{
			Class:      string(bytes.TrimRight(classBytes, "\x00")),
			Confidence: float64(det.confidence),
			X:          int(det.bbox.x),
			Y:          int(det.bbox.y),
			W:          int(det.bbox.w),
			H:          int(det.bbox.h),
		})
	}
	return out, true
}

// WaitNewFrame waits for new frame notification via semaphore
func (r *Reader) WaitNewFrame(timeout time.Duration) error {
	if r.shm == nil {
		return fmt.Errorf("shared memory not open")
	}

	result := int(C.wait_new_frame(r.shm, C.int(timeout.Milliseconds())))
	if result == 0 {
		return nil
	}

	// Result is negative errno
	switch errNum := -result; errNum {
	case 110: // ETIMEDOUT
		return ErrTimeout
	case 4: // EINTR
		return fmt.Errorf("interrupted (errno %d)", errNum)
	default:
		return fmt.Errorf("semaphore wait failed (errno %d)", errNum)
	}
}
