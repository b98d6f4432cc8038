// Package procutil makes sure helper processes spawned by the app (the topic
// classifier) never outlive their deadline or the app itself.
//
// Call Prepare before Start. Prepare places the child in its own process
// group and installs a cmd.Cancel that kills the whole group, so an
// exec.CommandContext deadline takes down grandchildren too.
package procutil
