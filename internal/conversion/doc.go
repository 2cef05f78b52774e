// Package conversion renders thumbnails for a folder of RAW files using a
// bounded worker pool. Each worker first asks the cache whether the image was
// already converted; otherwise it invokes the Renderer and records the new
// thumbnail in the cache under the mapping lock.
package conversion
