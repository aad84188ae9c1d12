// Package feed keeps a named pipe supplied with PCM audio for as long as the
// process runs.
//
// A single Writer owns the pipe. It repeatedly takes the oldest clip from
// the Queue and streams it, or writes one unit of real-time paced silence
// when the queue is empty, so the reader (a media encoder) never starves.
// When the reader goes away the writer closes its handle and waits for the
// next reader to attach. Producers only ever touch the Queue.
package feed
