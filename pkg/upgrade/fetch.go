package upgrade

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/golang/glog"

	"github.com/vesync-hijack/plugstrap/pkg/flash"
	"github.com/vesync-hijack/plugstrap/pkg/httpconn"
)

// fetch downloads path from server into the erased region dst and returns
// the image size. Nothing is erased until the response has been checked
// against dst, and nothing is written until every sector is erased.
func (o *Orchestrator) fetch(ctx context.Context, server net.IP, path string, dst Partition) (uint32, error) {
	o.setState(StateDownloading)
	addr := net.JoinHostPort(server.String(), strconv.Itoa(o.cfg.HTTPPort))
	opts := []httpconn.Option{httpconn.WithTimeout(o.cfg.ReceiveTimeout)}
	if o.dial != nil {
		opts = append(opts, httpconn.WithDialer(o.dial))
	}
	c := httpconn.New(addr, opts...)
	defer c.Close()

	glog.Infof("Requesting %s from %s", path, addr)
	if err := c.Get(ctx, path); err != nil {
		return 0, stage(StateDownloading, err)
	}
	if c.StatusCode() != 200 {
		return 0, stage(StateDownloading, &StatusError{Code: c.StatusCode()})
	}
	length := c.ContentLength()
	if length == 0 {
		return 0, stage(StateDownloading, ErrNoContentLength)
	}
	if uint64(length) > uint64(dst.Size) {
		return 0, stage(StateDownloading, fmt.Errorf("%w: %d bytes, room for %d", ErrImageTooLarge, length, dst.Size))
	}

	o.setState(StateFlashing)
	if err := flash.EraseRange(o.hw.Flash, dst.Offset, uint32(length)); err != nil {
		return 0, stage(StateFlashing, err)
	}
	w, err := flash.NewWriter(o.hw.Flash, dst.Offset)
	if err != nil {
		return 0, stage(StateFlashing, err)
	}
	done := 0
	for !c.Finished() {
		data := c.Data()
		if _, err := w.Write(data); err != nil {
			return 0, stage(StateFlashing, err)
		}
		done += len(data)
		if o.progress != nil {
			o.progress(done, length)
		}
		if err := c.Next(); err != nil {
			return 0, stage(StateFlashing, fmt.Errorf("could not read image: %w", err))
		}
	}
	if err := w.Finish(); err != nil {
		return 0, stage(StateFlashing, err)
	}
	glog.Infof("Write complete, %d bytes at 0x%x", length, dst.Offset)
	return uint32(length), nil
}
