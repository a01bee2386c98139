// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package search answers free-text queries against a built index.
//
// A Querier moves through these states:
//
//	Unbuilt --Build--> Built --Save--> Persisted
//	   |                 |               |
//	   '--Load--> Restored <-------------'
//	                 |
//	              Restore
//	                 v
//	               Ready
//
// Load takes a querier from any state to Restored: vectors are present but
// the graph is not. Restore rebuilds the graph from the vectors and is
// accepted from every state that holds vectors. Only Ready answers queries;
// every other state fails with core.ErrIndexNotReady.
//
// Results are ordered by descending cosine similarity with ties broken by
// ascending position in the flattened node sequence.
package search
